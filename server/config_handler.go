package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"nomade/config"
	"os"
	"path/filepath"
	"strings"
)

// ヘルパー関数: エラーをJSONで返す
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}

// GetConfigHandler は現在の設定を返します
func GetConfigHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := config.GetConfig()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cfg)
	}
}

// SaveConfigHandler は設定を保存します。DBパスの変更は再起動後に反映されます。
func SaveConfigHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var newCfg config.Config
		if err := json.NewDecoder(r.Body).Decode(&newCfg); err != nil {
			writeJSONError(w, "リクエストが不正です。", http.StatusBadRequest)
			return
		}

		if err := validateFilePath(newCfg.DatabasePath); err != nil {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateFilePath(newCfg.SnapshotPath); err != nil {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		switch strings.ToLower(newCfg.CSVEncoding) {
		case "", "utf-8", "utf8", "shift_jis", "sjis":
		default:
			writeJSONError(w, "CSVの文字コードは utf-8 か shift_jis を指定してください。", http.StatusBadRequest)
			return
		}

		if err := config.SaveConfig(newCfg); err != nil {
			log.Printf("Error saving config: %v", err)
			writeJSONError(w, "設定の保存に失敗しました。", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "設定を保存しました。"})
	}
}

// ファイルパスの親フォルダを検証するヘルパー関数
func validateFilePath(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.New("指定されたフォルダが見つかりません: " + dir)
		}
		log.Printf("Error checking folder path: %v", err)
		return errors.New("フォルダパスの確認中にエラーが発生しました。")
	}
	if !info.IsDir() {
		return errors.New("指定されたパスはフォルダではありません: " + dir)
	}
	return nil
}
