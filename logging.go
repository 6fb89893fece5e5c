package raft

import "go.uber.org/zap"

// NewDevelopmentLogger returns a human-friendly, colorized logger suitable
// for a single node running on a developer's machine.
func NewDevelopmentLogger() *zap.SugaredLogger {
	l, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return l.Sugar()
}

// NewProductionLogger returns a JSON logger suitable for a deployed cluster.
func NewProductionLogger() *zap.SugaredLogger {
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return l.Sugar()
}
