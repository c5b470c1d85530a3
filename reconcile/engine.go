package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"nomade/database"
	"nomade/metrics"
	"nomade/schema"
	"nomade/snapshot"
	"time"

	"github.com/google/uuid"
)

var ErrImportCancelled = errors.New("import cancelled")

// Rights は端末に保存された権限の参照先です。
type Rights interface {
	InventoryManagerRight(ctx context.Context) (bool, error)
}

type Engine struct {
	store  *database.Store
	rights Rights
}

func New(store *database.Store, rights Rights) *Engine {
	return &Engine{store: store, rights: rights}
}

type StepResult struct {
	Name string `json:"name"`
	Rows int    `json:"rows"`
}

type Report struct {
	RunID            string       `json:"runId"`
	StartedAt        time.Time    `json:"startedAt"`
	FinishedAt       time.Time    `json:"finishedAt"`
	Steps            []StepResult `json:"steps"`
	AnomaliesSkipped bool         `json:"anomaliesSkipped"`
}

// Import はスナップショット1件を固定順で取り込みます。
// 全ステップは1トランザクションで実行され、途中で失敗・キャンセルされた場合は
// 何も反映されません。
func (e *Engine) Import(ctx context.Context, p snapshot.Payload) (*Report, error) {
	report := &Report{RunID: uuid.NewString(), StartedAt: time.Now()}
	for key := range p {
		if !snapshot.Known(key) {
			log.Printf("WARN: [Import %s] unknown collection %q ignored", report.RunID, key)
		}
	}

	withAnomalies := e.anomaliesAllowed(ctx, report.RunID)
	report.AnomaliesSkipped = !withAnomalies

	err := e.store.InTx(ctx, func(tx *database.Store) error {
		for _, st := range e.steps(withAnomalies) {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%w before step %s: %w", ErrImportCancelled, st.name, err)
			}
			n, err := st.run(ctx, tx, p)
			if err != nil {
				return fmt.Errorf("failed to import %s: %w", st.name, err)
			}
			report.Steps = append(report.Steps, StepResult{Name: st.name, Rows: n})
		}
		return nil
	})
	if err != nil {
		log.Printf("ERROR: [Import %s] rolled back: %v", report.RunID, err)
		if ctx.Err() != nil && !errors.Is(err, ErrImportCancelled) {
			err = fmt.Errorf("%w: %w", ErrImportCancelled, err)
		}
		result := "failed"
		if errors.Is(err, ErrImportCancelled) {
			result = "cancelled"
		}
		metrics.ImportFinished(result, time.Since(report.StartedAt))
		return nil, err
	}

	report.FinishedAt = time.Now()
	total := 0
	for _, s := range report.Steps {
		total += s.Rows
		metrics.ImportStep(s.Name, s.Rows)
	}
	metrics.ImportFinished("ok", report.FinishedAt.Sub(report.StartedAt))
	log.Printf("INFO: [Import %s] done: %d steps, %d rows in %s",
		report.RunID, len(report.Steps), total, report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	return report, nil
}

// 権限の取得に失敗しても取込は続け、異常データの取込だけを見送ります。
func (e *Engine) anomaliesAllowed(ctx context.Context, runID string) bool {
	if e.rights == nil {
		return false
	}
	ok, err := e.rights.InventoryManagerRight(ctx)
	if err != nil {
		log.Printf("WARN: [Import %s] inventory manager right unavailable, anomalies skipped: %v", runID, err)
		return false
	}
	return ok
}

// ImportPartialRefArticles はリファレンス集約行だけを部分更新します。
// 受信した reference_article の行だけを入れ替え、他の集約行は残します。
func (e *Engine) ImportPartialRefArticles(ctx context.Context, p snapshot.Payload) (int, error) {
	rows := project(schema.ArticlePrepaByRefArticle, p.Records(snapshot.ArticlesPrepaByRefArticle), refArticleMapper)
	if len(rows) == 0 {
		return 0, nil
	}
	var parents []string
	seen := map[string]bool{}
	for _, r := range rows {
		ref := r.String("reference_article")
		if !seen[ref] {
			seen[ref] = true
			parents = append(parents, ref)
		}
	}

	var n int
	err := e.store.InTx(ctx, func(tx *database.Store) error {
		var err error
		n, err = fullReplace(ctx, tx, schema.ArticlePrepaByRefArticle, rows, replaceOptions{
			scope: []database.Clause{database.In("reference_article", parents)},
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	log.Printf("INFO: [Import] partial reference articles: %d rows for %d parents", n, len(parents))
	return n, nil
}
