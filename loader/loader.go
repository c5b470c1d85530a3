package loader

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"nomade/database"
	"nomade/snapshot"
	"os"
	"strings"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// InitDatabase はローカルDBのテーブルを作り直します。
// force が false の場合、オペレーターの作業中データは残ります (ログアウト時)。
func InitDatabase(ctx context.Context, store *database.Store, force bool) error {
	log.Printf("Applying database schema (force=%t)...", force)
	if err := store.ResetDatabase(ctx, force); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	log.Println("Schema applied successfully.")
	return nil
}

// ReadPayload はスナップショットのJSONを読み込みます。
// 数値は json.Number のまま保持し、ID の桁落ちを防ぎます。
func ReadPayload(r io.Reader) (snapshot.Payload, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw map[string][]map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot payload: %w", err)
	}
	p := make(snapshot.Payload, len(raw))
	for k, recs := range raw {
		out := make([]database.Record, 0, len(recs))
		for _, rec := range recs {
			if rec == nil {
				continue
			}
			out = append(out, database.Record(rec))
		}
		p[k] = out
	}
	return p, nil
}

func LoadPayloadFile(path string) (snapshot.Payload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open file %s: %w", path, err)
	}
	defer f.Close()
	p, err := ReadPayload(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// LoadCSVCollection はヘッダー付きCSVを1コレクション分のレコードとして読み込みます。
// encoding が "shift_jis" の場合は Shift-JIS として読みます。
func LoadCSVCollection(path, encoding string) ([]database.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open file %s: %w", path, err)
	}
	defer f.Close()
	return ReadCSVCollection(f, encoding)
}

func ReadCSVCollection(src io.Reader, encoding string) ([]database.Record, error) {
	var in io.Reader = src
	switch strings.ToLower(strings.ReplaceAll(encoding, "-", "_")) {
	case "", "utf8", "utf_8":
	case "shift_jis", "sjis":
		in = transform.NewReader(src, japanese.ShiftJIS.NewDecoder())
	default:
		return nil, fmt.Errorf("unsupported csv encoding %q", encoding)
	}

	r := csv.NewReader(in)
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return []database.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	out := []database.Record{}
	line := 1
	for {
		row, readErr := r.Read()
		line++
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			log.Printf("WARN: Error reading csv line %d (skipping): %v", line, readErr)
			continue
		}
		rec := database.Record{}
		for i, name := range header {
			if name == "" || i >= len(row) {
				continue
			}
			rec[name] = csvValue(row[i])
		}
		out = append(out, rec)
	}
	return out, nil
}

// csvValue は前後の空白を除いた文字列を返します。空欄は NULL です。
// バーコードの先頭の0を残すため数値には変換しません。型はカラムの型に任せます。
func csvValue(s string) any {
	val := strings.TrimSpace(s)
	if val == "" {
		return nil
	}
	return val
}
