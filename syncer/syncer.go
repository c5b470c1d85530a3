package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"nomade/model"
	"nomade/picking"
	"nomade/reconcile"
	"nomade/snapshot"
)

// SnapshotSource はサーバーからスナップショットを取得します (HTTP実装は外部)。
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context) (snapshot.Payload, error)
}

// RecordSink はドロップ済みの移動をサーバーへ送ります。
type RecordSink interface {
	SendMovements(ctx context.Context, movements []model.Movement) error
}

type Syncer struct {
	ledger *picking.Ledger
	engine *reconcile.Engine
	source SnapshotSource
	sink   RecordSink
}

func New(ledger *picking.Ledger, engine *reconcile.Engine, source SnapshotSource, sink RecordSink) *Syncer {
	return &Syncer{ledger: ledger, engine: engine, source: source, sink: sink}
}

type Result struct {
	Sent   int
	Report *reconcile.Report
}

// Run は未送信の移動を先に送ってから、最新のスナップショットを取り込みます。
// 送信に失敗した場合は取込を行いません (サーバー側にない作業を上書きしないため)。
func (s *Syncer) Run(ctx context.Context) (*Result, error) {
	res := &Result{}

	pending, err := s.ledger.PendingMovements(ctx)
	if err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		if s.sink == nil {
			return nil, fmt.Errorf("no sink configured for %d pending movements", len(pending))
		}
		if err := s.sink.SendMovements(ctx, pending); err != nil {
			return nil, fmt.Errorf("failed to send %d movements: %w", len(pending), err)
		}
		ids := make([]int64, len(pending))
		for i, m := range pending {
			ids[i] = m.ID
		}
		if _, err := s.ledger.MarkMovementsSent(ctx, ids); err != nil {
			return nil, err
		}
		res.Sent = len(pending)
	}

	if s.source == nil {
		log.Printf("INFO: [Sync] no snapshot source, %d movements sent", res.Sent)
		return res, nil
	}
	p, err := s.source.FetchSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot: %w", err)
	}
	report, err := s.engine.Import(ctx, p)
	if err != nil {
		return nil, err
	}
	res.Report = report
	log.Printf("INFO: [Sync] %d movements sent, snapshot %s imported", res.Sent, report.RunID)
	return res, nil
}

// FileSource はローカルのJSONファイルをスナップショットとして扱います。
type FileSource struct {
	Load func() (snapshot.Payload, error)
}

func (f FileSource) FetchSnapshot(ctx context.Context) (snapshot.Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.Load()
}

// FileSink は送信対象の移動をJSONファイルに書き出します。
// 既存のファイルは上書きします。サーバーへの送信は別プロセスに任せる運用向けです。
type FileSink struct {
	Path string
}

func (f FileSink) SendMovements(ctx context.Context, movements []model.Movement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(movements, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal movements: %w", err)
	}
	if err := os.WriteFile(f.Path, data, 0644); err != nil {
		return fmt.Errorf("failed to write movements to %s: %w", f.Path, err)
	}
	return nil
}
