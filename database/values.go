package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

// Record はテーブルの1行をカラム名で表したものです。
type Record map[string]any

// Int はカラム値を int64 として読みます。数値化できない場合は 0 です。
func (r Record) Int(key string) int64 {
	n, _ := ToInt64(r[key])
	return n
}

func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ToInt64 はJSON由来の float64 / json.Number や文字列も含めて整数化します。
func ToInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float32:
		return int64(n), float64(n) == math.Trunc(float64(n))
	case float64:
		return int64(n), n == math.Trunc(n)
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return int64(f), f == math.Trunc(f)
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	case []byte:
		i, err := strconv.ParseInt(string(n), 10, 64)
		return i, err == nil
	}
	return 0, false
}

// KeyString は比較用に値を正規化します。
// サーバー由来の 12.0 とDB由来の int64(12) が同じキーになります。
func KeyString(v any) string {
	switch t := v.(type) {
	case nil:
		return "\x00"
	case string:
		return t
	case []byte:
		return string(t)
	}
	if n, ok := ToInt64(v); ok {
		return strconv.FormatInt(n, 10)
	}
	return fmt.Sprint(v)
}

// encodeValue はGoの値をSQLiteのバインド値に変換します。
// bool は 0/1、nil は NULL、配列やオブジェクトはJSON文字列になります。
func encodeValue(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string, int, int8, int16, int32, int64, uint8, uint16, uint32, float32, float64:
		return val, nil
	case uint:
		return int64(val), nil
	case uint64:
		return int64(val), nil
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return string(val), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		if f, err := val.Float64(); err == nil {
			return f, nil
		}
		return val.String(), nil
	case time.Time:
		return val.Format(time.RFC3339), nil
	case driver.Valuer:
		return val.Value()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return encodeValue(rv.Elem().Interface())
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode value of type %T: %w", v, err)
		}
		return string(b), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Bool:
		return encodeValue(rv.Bool())
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

func encodeArgs(args []any) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		v, err := encodeValue(a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// normalizeRow は MapScan の結果を扱いやすい型に揃えます。
func normalizeRow(m map[string]interface{}) Record {
	r := make(Record, len(m))
	for k, v := range m {
		if b, ok := v.([]byte); ok {
			r[k] = string(b)
			continue
		}
		r[k] = v
	}
	return r
}
