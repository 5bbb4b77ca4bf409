package executor

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"longjob/internal/job"
)

// EncodeExecutor produces the character-frequency encoding of a job's input,
// one character at a time. StepDelay simulates slow, long-running work; tests
// run with zero delay.
type EncodeExecutor struct {
	StepDelay time.Duration
}

// NewEncodeExecutor creates the executor for encode jobs.
func NewEncodeExecutor(stepDelay time.Duration) *EncodeExecutor {
	return &EncodeExecutor{StepDelay: stepDelay}
}

// Type implements Executor.
func (e *EncodeExecutor) Type() job.Type {
	return job.TypeEncode
}

// Execute emits the encoded output character by character, advancing the
// payload cursor before each unit is delivered so the progress sink always
// sees the cursor that includes it. A stored cursor that matches a prefix of
// the deterministic output resumes at the suffix; a mismatched or
// out-of-range cursor resets to the start.
func (e *EncodeExecutor) Execute(ctx context.Context, j *job.Job, progress ProgressFunc) error {
	p := j.Encode
	if p == nil {
		return fmt.Errorf("job %s is not an encode job", j.ID)
	}

	encoded := []rune(BuildEncoded(p.Input))

	if p.Cursor < 0 || p.Cursor > len(encoded) || string(encoded[:p.Cursor]) != p.Produced {
		p.Reset()
	}

	for i := p.Cursor; i < len(encoded); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		p.UpdateProgress(i+1, string(encoded[:i+1]))
		if err := progress(ctx, string(encoded[i])); err != nil {
			return err
		}

		if e.StepDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.StepDelay):
			}
		}
	}

	return nil
}

// BuildEncoded returns the deterministic output for an input: per-character
// counts (spaces skipped, characters in ascending order), a '/' separator,
// then the base64 of the raw input.
func BuildEncoded(input string) string {
	counts := make(map[rune]int)
	for _, r := range input {
		if r == ' ' {
			continue
		}
		counts[r]++
	}

	chars := make([]rune, 0, len(counts))
	for r := range counts {
		chars = append(chars, r)
	}
	sort.Slice(chars, func(i, k int) bool { return chars[i] < chars[k] })

	var b strings.Builder
	for _, r := range chars {
		b.WriteString(strconv.Itoa(counts[r]))
		b.WriteRune(r)
	}
	b.WriteByte('/')
	b.WriteString(base64.StdEncoding.EncodeToString([]byte(input)))

	return b.String()
}
