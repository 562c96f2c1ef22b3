package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v2"
)

// Output formats
const (
	OutputFormatYAML = "yaml"
	OutputFormatJSON = "json"
)

// printOutput prints the output in the specified format
func printOutput(w io.Writer, data interface{}, format string) error {
	switch format {
	case OutputFormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(data)
	case OutputFormatYAML:
		encoder := yaml.NewEncoder(w)
		defer encoder.Close()
		return encoder.Encode(data)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// TxRecordOutput is one row of `tx history`.
type TxRecordOutput struct {
	Time        time.Time `yaml:"time" json:"time"`
	Kind        string    `yaml:"kind" json:"kind"`
	Status      string    `yaml:"status" json:"status"`
	TxHash      string    `yaml:"tx_hash,omitempty" json:"tx_hash,omitempty"`
	Denom       string    `yaml:"denom" json:"denom"`
	Amount      string    `yaml:"amount" json:"amount"`
	Height      int64     `yaml:"height,omitempty" json:"height,omitempty"`
	ExplorerURL string    `yaml:"explorer_url,omitempty" json:"explorer_url,omitempty"`
	Log         string    `yaml:"log,omitempty" json:"log,omitempty"`
}
