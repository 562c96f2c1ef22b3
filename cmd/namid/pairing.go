package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nami-protocol/nami-client/namiClient/logger"
	"github.com/nami-protocol/nami-client/namiClient/network"
	"github.com/nami-protocol/nami-client/namiClient/pairing"
	"github.com/nami-protocol/nami-client/namiClient/wallet"
	"github.com/nami-protocol/nami-client/namiClient/wallet/local"
)

func pairingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pairing",
		Short: "Run a pairing relay or act as the remote wallet",
	}

	cmd.AddCommand(pairingRelayCmd(), pairingApproveCmd())
	return cmd
}

func pairingRelayCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Serve the websocket relay dapps and wallets pair through",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat, cfg.LogSampler)
			if port == 0 {
				port = cfg.PairingConfig.ListenPort
			}

			mux := http.NewServeMux()
			mux.Handle("/relay", pairing.NewRelayServer(log))
			server := &http.Server{
				Addr:              fmt.Sprintf(":%d", port),
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				_ = server.Close()
			}()

			log.Info().Str("addr", server.Addr).Msg("pairing relay listening on /relay")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Listen port, defaults to pairing_config.listen_port")
	return cmd
}

func pairingApproveCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "approve <uri>",
		Short: "Approve a dapp's pairing URI and sign its requests with the keyring key",
		Long: `
Act as the remote wallet for a dapp showing a pairing URI: answer the
proposal with the keyring key's account, then sign every transaction the
dapp requests until it disconnects or the command is interrupted.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := newApp(cmd, appOptions{signing: true, connect: wallet.KindKeyring})
			if err != nil {
				return err
			}
			defer app.Close()

			w, err := local.NewConnector(app.cfg, app.log, local.WithoutWatch()).Connect(ctx, wallet.ConnectRequest{
				Network: app.network.Network(),
				Chain:   app.network,
			})
			if err != nil {
				return err
			}
			signer, ok := w.(pairing.TxSigner)
			if !ok {
				return fmt.Errorf("keyring wallet cannot sign offline")
			}

			enc, err := network.MakeEncodingConfig(app.network.NetworkConfig().Bech32Prefix)
			if err != nil {
				return err
			}

			relay, err := pairing.DialRelay(ctx, app.cfg.PairingConfig.RelayURL, nil, app.log)
			if err != nil {
				return err
			}

			opts := []pairing.ResponderOption{pairing.WithSessionTTL(app.cfg.PairingConfig.SessionTTL())}
			if !yes {
				opts = append(opts, pairing.WithApprove(func(p pairing.Participant, _ map[string]pairing.RequiredNamespace) bool {
					return confirm(cmd, fmt.Sprintf("Approve pairing with %s (%s)? [y/N]: ", p.Metadata.Name, p.Metadata.URL))
				}))
			}
			responder := pairing.NewResponder(relay, signer, enc.InterfaceRegistry, app.network.ChainID(), app.log, opts...)
			defer responder.Close()

			pairCtx, cancel := context.WithTimeout(ctx, app.cfg.PairingConfig.ApprovalTimeout())
			session, err := responder.Pair(pairCtx, args[0])
			cancel()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Paired with %s as %s, session expires %s\n",
				session.PeerName, signer.Account().Address, session.Expiry.Format(time.RFC3339))

			select {
			case <-responder.Deleted():
				fmt.Fprintln(cmd.OutOrStdout(), "Dapp ended the session")
			case <-ctx.Done():
				dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := responder.Disconnect(dctx, session.Topic); err != nil {
					app.log.Warn().Err(err).Msg("failed to end session")
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Approve the proposal without asking")
	return cmd
}

func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	response, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
