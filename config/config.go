package config

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabasePath     string `json:"databasePath"`
	SnapshotPath     string `json:"snapshotPath"`
	ListenAddr       string `json:"listenAddr"`
	CSVEncoding      string `json:"csvEncoding"`
	InventoryManager bool   `json:"inventoryManager"`
}

var (
	cfg Config
	mu  sync.RWMutex
)

var configFilePath = "./nomade_config.json"

func defaults() Config {
	return Config{
		DatabasePath: "./nomade.db",
		SnapshotPath: "./snapshot.json",
		ListenAddr:   "127.0.0.1:8080",
		CSVEncoding:  "utf-8",
	}
}

func applyDefaults(c *Config) {
	d := defaults()
	if c.DatabasePath == "" {
		c.DatabasePath = d.DatabasePath
	}
	if c.SnapshotPath == "" {
		c.SnapshotPath = d.SnapshotPath
	}
	if c.ListenAddr == "" {
		c.ListenAddr = d.ListenAddr
	}
	if c.CSVEncoding == "" {
		c.CSVEncoding = d.CSVEncoding
	}
}

// LoadEnv は .env があれば読み込みます。なくてもエラーにはしません。
func LoadEnv() {
	_ = godotenv.Load()
}

// applyEnv は NOMADE_* 環境変数で設定を上書きします。
func applyEnv(c *Config) {
	if v := os.Getenv("NOMADE_DB"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("NOMADE_SNAPSHOT"); v != "" {
		c.SnapshotPath = v
	}
	if v := os.Getenv("NOMADE_LISTEN"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("NOMADE_CSV_ENCODING"); v != "" {
		c.CSVEncoding = v
	}
	if v := os.Getenv("NOMADE_INVENTORY_MANAGER"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			log.Printf("WARN: NOMADE_INVENTORY_MANAGER=%q is not a boolean, ignored", v)
		} else {
			c.InventoryManager = b
		}
	}
}

func LoadConfig() (Config, error) {
	mu.Lock()
	defer mu.Unlock()

	file, err := os.ReadFile(configFilePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, err
		}
		file = nil
	}

	var tempCfg Config
	if file != nil {
		if err := json.Unmarshal(file, &tempCfg); err != nil {
			return Config{}, err
		}
	}
	applyDefaults(&tempCfg)
	applyEnv(&tempCfg)
	cfg = tempCfg

	return cfg, nil
}

func SaveConfig(newCfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	applyDefaults(&newCfg)

	file, err := json.MarshalIndent(newCfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(configFilePath, file, 0644); err != nil {
		return err
	}
	cfg = newCfg
	return nil
}

func GetConfig() Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Rights は端末に保存された権限を返します。
type Rights struct{}

// InventoryManagerRight は棚卸し管理者権限 (異常データの取込可否) です。
func (Rights) InventoryManagerRight(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return GetConfig().InventoryManager, nil
}
