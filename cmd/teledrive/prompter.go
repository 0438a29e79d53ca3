// prompter.go — интерактивный ввод данных авторизации с терминала.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// stdinPrompter читает телефон, код подтверждения и пароль 2FA со
// стандартного ввода. Чтение выполняется в отдельной горутине, чтобы
// отмена контекста прерывала ожидание ввода.
type stdinPrompter struct {
	reader *bufio.Reader
}

func newStdinPrompter() *stdinPrompter {
	return &stdinPrompter{reader: bufio.NewReader(os.Stdin)}
}

func (p *stdinPrompter) prompt(ctx context.Context, label string) (string, error) {
	fmt.Printf("%s: ", label)

	type lineResult struct {
		line string
		err  error
	}
	ch := make(chan lineResult, 1)
	go func() {
		line, err := p.reader.ReadString('\n')
		ch <- lineResult{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		fmt.Println()
		return "", ctx.Err()
	case res := <-ch:
		if res.err != nil {
			return "", fmt.Errorf("чтение ввода: %w", res.err)
		}
		return strings.TrimSpace(res.line), nil
	}
}

func (p *stdinPrompter) Phone(ctx context.Context) (string, error) {
	return p.prompt(ctx, "Номер телефона (в формате +7...)")
}

func (p *stdinPrompter) Code(ctx context.Context) (string, error) {
	return p.prompt(ctx, "Код подтверждения из Telegram")
}

func (p *stdinPrompter) Password(ctx context.Context) (string, error) {
	return p.prompt(ctx, "Пароль двухфакторной защиты")
}
