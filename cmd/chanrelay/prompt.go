// Copyright 2024-2026 Aiku AI

package main

import (
	"errors"
	"strings"

	"github.com/chzyer/readline"
)

// errPromptCancelled is returned when the user interrupts a prompt.
var errPromptCancelled = errors.New("prompt cancelled")

// terminalPrompter reads login details from the terminal.
type terminalPrompter struct{}

func newTerminalPrompter() *terminalPrompter {
	return &terminalPrompter{}
}

func (p *terminalPrompter) open(label string) (*readline.Instance, error) {
	return readline.NewEx(&readline.Config{
		Prompt:          label,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
}

func (p *terminalPrompter) Prompt(label string) (string, error) {
	rl, err := p.open(label)
	if err != nil {
		return "", err
	}
	defer rl.Close()

	line, err := rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", errPromptCancelled
	} else if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (p *terminalPrompter) PromptSecret(label string) (string, error) {
	rl, err := p.open(label)
	if err != nil {
		return "", err
	}
	defer rl.Close()

	secret, err := rl.ReadPassword(label)
	if errors.Is(err, readline.ErrInterrupt) {
		return "", errPromptCancelled
	} else if err != nil {
		return "", err
	}
	return string(secret), nil
}
