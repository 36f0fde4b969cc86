package config

import (
	"fmt"
	"os"

	"tutor-support-bot/internal/logger"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

type (
	// Conf содержит настройки приложения.
	Conf struct {
		Server Server `yaml:"server"`

		Gateway Gateway `yaml:"gateway"`

		DB DB `yaml:"db"`

		Embedding Embedding `yaml:"embedding"`

		// Файл с текстами и кнопками бота.
		RepliesFile string `yaml:"replies_file"`

		// Папка для логов, пустая строка отключает запись в файл.
		LogDir string `yaml:"log_dir"`

		RunInDebug bool `yaml:"-"`
	}

	Server struct {
		// Внешний адрес, на который шлюз доставляет события.
		Host   string `yaml:"host"`
		Listen string `yaml:"listen"`
	}

	// Gateway - чат-шлюз, доставляющий входящие события и
	// выполняющий исходящую отправку.
	Gateway struct {
		Addr     string `yaml:"addr"`
		Login    string `yaml:"login"`
		Password string `yaml:"password"`
	}

	DB struct {
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslmode"`
	}

	Embedding struct {
		Addr           string `yaml:"addr"`
		Model          string `yaml:"model"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	}
)

const (
	defaultEmbeddingAddr  = "http://127.0.0.1:11434"
	defaultEmbeddingModel = "nomic-embed-text"
)

func GetConfig(configPath string, cnf *Conf) {
	logger.Debug("Loading configuration")

	input, err := os.Open(configPath)
	if err != nil {
		logger.Crit("Error while reading config!")
	}
	defer input.Close()

	decoder := yaml.NewDecoder(input)
	err = decoder.Decode(cnf)
	if err != nil {
		logger.Crit("Error while decoding config!", err)
	}

	// секреты разрешено задавать через окружение, а не в yaml
	_ = godotenv.Load(".env")
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cnf.DB.Password = v
	}
	if v := os.Getenv("GATEWAY_PASSWORD"); v != "" {
		cnf.Gateway.Password = v
	}

	if cnf.DB.Port == "" {
		cnf.DB.Port = "5432"
	}
	if cnf.DB.SSLMode == "" {
		cnf.DB.SSLMode = "disable"
	}
	if cnf.Embedding.Addr == "" {
		cnf.Embedding.Addr = defaultEmbeddingAddr
	}
	if cnf.Embedding.Model == "" {
		cnf.Embedding.Model = defaultEmbeddingModel
	}
	if cnf.Embedding.TimeoutSeconds <= 0 {
		cnf.Embedding.TimeoutSeconds = 10
	}
}

// DSN для gorm и goose.
func (c *Conf) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode)
}
