package main

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type logConfig struct {
	Level  string
	File   string
	MaxMB  int
	Format string
}

// newLogger builds the process logger. When File is set, output goes to both stdout
// and a size-rotated file.
func newLogger(cfg logConfig) (*logrus.Logger, io.Closer, error) {
	l := logrus.New()
	lvl, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		return nil, nil, err
	}
	l.SetLevel(lvl)
	if strings.EqualFold(cfg.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if strings.TrimSpace(cfg.File) == "" {
		l.SetOutput(os.Stdout)
		return l, io.NopCloser(nil), nil
	}
	maxMB := cfg.MaxMB
	if maxMB <= 0 {
		maxMB = 100
	}
	rot := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    maxMB,
		MaxBackups: 5,
		Compress:   true,
	}
	l.SetOutput(io.MultiWriter(os.Stdout, rot))
	return l, rot, nil
}
