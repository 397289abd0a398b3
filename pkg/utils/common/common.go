package common

import (
	"context"
	"math/rand"
	"os"
	"strings"
	"time"

	"k8s.io/utils/clock"
)

// Getenv fetch the env and set the default value, if any
func Getenv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	return value
}

// SplitList splits a comma separated value, dropping empty entries
func SplitList(value string) []string {
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// GetRunID generate a random string
func GetRunID() string {
	var letterRunes = []rune("abcdefghijklmnopqrstuvwxyz")
	runID := make([]rune, 6)
	for i := range runID {
		runID[i] = letterRunes[rand.Intn(len(letterRunes))]
	}
	return string(runID)
}

// RandomIndex returns a random index in [0, n)
func RandomIndex(n int) int {
	if n <= 1 {
		return 0
	}
	return rand.Intn(n)
}

// WaitForDuration sleeps on the clock unless the context ends first.
// Non real clocks are slept on directly so fake clocks advance without a stepper.
func WaitForDuration(ctx context.Context, clk clock.Clock, duration time.Duration) error {
	if duration <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, isReal := clk.(clock.RealClock); !isReal {
		clk.Sleep(duration)
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clk.After(duration):
		return nil
	}
}

// Contains reports whether the value is present in the list
func Contains(value string, list []string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
