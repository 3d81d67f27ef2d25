// Package gainfile rewrites the integer gain argument of a waveform
// generator script in place.
package gainfile

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/n5hz/wavetuner/internal/config"
)

// ErrNoCandidate is returned when no call site matches the set_gain pattern.
var ErrNoCandidate = fmt.Errorf("gainfile: no set_gain call found")

// OutOfRangeError reports a rejected write, naming the offending value and
// the bound it violated.
type OutOfRangeError struct {
	Gain, Channel int
	GainMin       int
	GainMax       int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("gainfile: gain %d or channel %d out of range [%d,%d]/{0,1}",
		e.Gain, e.Channel, e.GainMin, e.GainMax)
}

// callPattern matches "self.<identifier>.set_gain( <signed_int>, <0|1> )"
// whitespace-insensitively.
var callPattern = regexp.MustCompile(`self\s*\.\s*([A-Za-z0-9_]+)\s*\.\s*set_gain\s*\(\s*([-+]?\d+)\s*,\s*([01])\s*\)`)

type candidate struct {
	lineIndex    int
	identifier   string
	channelParam int
	matchStart   int
	matchEnd     int
	gainStart    int
	gainEnd      int
	tokenCount   int
	lastToken    int
}

// Editor rewrites gain call sites, enforcing a configured (or default)
// allowed range independently of its selection logic.
type Editor struct {
	GainMin, GainMax int
}

// New builds an Editor from cfg, falling back to config.Default() bounds
// when cfg is the zero value.
func New(cfg config.Config) *Editor {
	min, max := cfg.GainMin, cfg.GainMax
	if min == 0 && max == 0 {
		d := config.Default()
		min, max = d.GainMin, d.GainMax
	}
	return &Editor{GainMin: min, GainMax: max}
}

// EditGain rewrites exactly one set_gain call's first argument in path,
// selecting the call site for targetChannel per the selection policy.
func (e *Editor) EditGain(path string, newGain, targetChannel int) error {
	if newGain < e.GainMin || newGain > e.GainMax || (targetChannel != 0 && targetChannel != 1) {
		return &OutOfRangeError{Gain: newGain, Channel: targetChannel, GainMin: e.GainMin, GainMax: e.GainMax}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("gainfile: read %s: %w", path, err)
	}
	lines := splitLines(string(data))

	candidates := findCandidates(lines)
	if len(candidates) == 0 {
		return ErrNoCandidate
	}

	chosen := selectCandidate(candidates, targetChannel)
	rewriteGain(lines, chosen, newGain)

	out := strings.Join(lines, "\n")
	if len(lines) > 0 {
		out += "\n"
	}
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		return fmt.Errorf("gainfile: write %s: %w", path, err)
	}
	return nil
}

// ExtractChannel returns the channel argument of the first set_gain call in
// path, or 0 if none is found or the file cannot be read.
func ExtractChannel(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	lines := splitLines(string(data))
	candidates := findCandidates(lines)
	if len(candidates) == 0 {
		return 0
	}
	return candidates[0].channelParam
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	if s == "" {
		return nil
	}
	trimmed := strings.TrimSuffix(s, "\n")
	return strings.Split(trimmed, "\n")
}

func findCandidates(lines []string) []candidate {
	var out []candidate
	for i, line := range lines {
		m := callPattern.FindStringSubmatchIndex(line)
		if m == nil {
			continue
		}
		identifier := line[m[2]:m[3]]
		channelParam, _ := strconv.Atoi(line[m[6]:m[7]])
		tokens := strings.Split(identifier, "_")
		lastToken := -1
		if v, err := strconv.Atoi(tokens[len(tokens)-1]); err == nil {
			lastToken = v
		}
		out = append(out, candidate{
			lineIndex:    i,
			identifier:   identifier,
			channelParam: channelParam,
			matchStart:   m[0],
			matchEnd:     m[1],
			gainStart:    m[4],
			gainEnd:      m[5],
			tokenCount:   len(tokens),
			lastToken:    lastToken,
		})
	}
	return out
}

// selectCandidate implements the four-step selection policy from §4.1.
func selectCandidate(candidates []candidate, targetChannel int) candidate {
	if c, ok := selectByChannelParam(candidates, targetChannel); ok {
		return c
	}
	if c, ok := selectByTokenCount(candidates, targetChannel); ok {
		return c
	}
	if c, ok := selectByLastToken(candidates, targetChannel); ok {
		return c
	}
	if targetChannel == 0 || len(candidates) == 1 {
		return candidates[0]
	}
	return candidates[1]
}

func selectByChannelParam(candidates []candidate, targetChannel int) (candidate, bool) {
	first := candidates[0].channelParam
	allSame := true
	for _, c := range candidates[1:] {
		if c.channelParam != first {
			allSame = false
			break
		}
	}
	if allSame {
		return candidate{}, false
	}
	for _, c := range candidates {
		if c.channelParam == targetChannel {
			return c, true
		}
	}
	return candidate{}, false
}

func selectByTokenCount(candidates []candidate, targetChannel int) (candidate, bool) {
	first := candidates[0].tokenCount
	allSame := true
	for _, c := range candidates[1:] {
		if c.tokenCount != first {
			allSame = false
			break
		}
	}
	if allSame {
		return candidate{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if targetChannel == 0 {
			if c.tokenCount < best.tokenCount {
				best = c
			}
		} else {
			if c.tokenCount > best.tokenCount {
				best = c
			}
		}
	}
	return best, true
}

func selectByLastToken(candidates []candidate, targetChannel int) (candidate, bool) {
	for _, c := range candidates {
		if c.lastToken == targetChannel {
			return c, true
		}
	}
	return candidate{}, false
}

func rewriteGain(lines []string, c candidate, newGain int) {
	line := lines[c.lineIndex]
	lines[c.lineIndex] = line[:c.gainStart] + strconv.Itoa(newGain) + line[c.gainEnd:]
}
