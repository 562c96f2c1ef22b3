package network

import (
	"context"
	"fmt"
	"time"

	errorsmod "cosmossdk.io/errors"

	nerrors "github.com/nami-protocol/nami-client/namiClient/errors"
)

// BroadcastTx submits signed tx bytes with broadcast_tx_sync and waits until
// the transaction is included in a block. A CheckTx rejection returns the
// response together with ErrTxFailed. When the transaction is not found
// within the broadcast timeout a timeout error is returned with the hash.
func (m *Manager) BroadcastTx(ctx context.Context, txBytes []byte) (*DeliverTxResponse, error) {
	conn, err := m.Conn()
	if err != nil {
		return nil, err
	}
	network := m.Network()

	res, err := conn.RPC.BroadcastTxSync(ctx, txBytes)
	if err != nil {
		return nil, nerrors.NewRPCError(network, "broadcast failed", err)
	}

	resp := &DeliverTxResponse{
		TxHash:    res.Hash.String(),
		Code:      res.Code,
		Codespace: res.Codespace,
		RawLog:    res.Log,
	}
	if res.Code != 0 {
		m.logger.Warn().
			Str("tx_hash", resp.TxHash).
			Uint32("code", res.Code).
			Str("codespace", res.Codespace).
			Str("raw_log", res.Log).
			Msg("transaction rejected by check tx")
		return resp, errorsmod.Wrapf(nerrors.ErrTxFailed, "check tx failed with code %d: %s", res.Code, res.Log)
	}

	m.logger.Info().Str("tx_hash", resp.TxHash).Msg("transaction broadcast, waiting for inclusion")

	timeout := m.cfg.BroadcastConfig.Timeout()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	interval := m.cfg.BroadcastConfig.PollInterval()
	if interval <= 0 {
		interval = 3 * time.Second
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		result, err := conn.RPC.Tx(waitCtx, res.Hash, false)
		if err == nil && result != nil {
			resp.Height = result.Height
			resp.Code = result.TxResult.Code
			resp.Codespace = result.TxResult.Codespace
			resp.RawLog = result.TxResult.Log
			resp.GasUsed = result.TxResult.GasUsed
			resp.GasWanted = result.TxResult.GasWanted
			m.logger.Info().
				Str("tx_hash", resp.TxHash).
				Int64("height", resp.Height).
				Uint32("code", resp.Code).
				Msg("transaction included")
			return resp, nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return resp, ctx.Err()
			}
			return resp, nerrors.NewTimeoutError(network,
				fmt.Sprintf("transaction %s was not included within %s", resp.TxHash, timeout))
		case <-ticker.C:
		}
	}
}

// BlockStatus reports the latest height, how far the latest block lags
// behind the local clock and the average block time over the last
// thousand blocks.
func (m *Manager) BlockStatus(ctx context.Context) (BlockStatus, error) {
	conn, err := m.Conn()
	if err != nil {
		return BlockStatus{}, err
	}

	status, err := conn.RPC.Status(ctx)
	if err != nil {
		return BlockStatus{}, nerrors.NewRPCError(m.Network(), "status failed", err)
	}

	bs := BlockStatus{
		Height:          status.SyncInfo.LatestBlockHeight,
		LatestBlockTime: status.SyncInfo.LatestBlockTime,
		Lag:             m.now().Sub(status.SyncInfo.LatestBlockTime),
	}

	if bs.Height > averageBlockWindow {
		past := bs.Height - averageBlockWindow
		block, err := conn.RPC.Block(ctx, &past)
		if err != nil {
			m.logger.Debug().Err(err).Int64("height", past).Msg("failed to fetch past block")
			return bs, nil
		}
		if block != nil && block.Block != nil {
			bs.AverageBlockTime = bs.LatestBlockTime.Sub(block.Block.Time) / averageBlockWindow
		}
	}
	return bs, nil
}
