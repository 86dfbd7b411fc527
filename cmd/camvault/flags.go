package main

import "time"

// Flag structs decouple cobra from the command logic for testing.

type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string
}

type SourceAddFlags struct {
	Protocol       string
	Host           string
	Port           int
	Path           string
	Username       string
	Password       string
	SegmentSeconds int
	LogLevel       string
}

type SettingsSetFlags struct {
	RecordsDir  string
	MinFreeGB   float64
	Relocation  string
	StoragePool string
}

type SegmentsFlags struct {
	SourceID int64
	From     string
	To       string
	Window   time.Duration
	JSON     bool
}

type ConfigInitFlags struct {
	Profile  string
	StateDir string
	Output   string
	Force    bool
}

type StatusFlags struct {
	APIUrl     string
	APITimeout time.Duration
	JSON       bool
	Insecure   bool
}
