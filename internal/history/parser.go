// Package history imports training logs exported from tracking apps
// into the coaching database, so progression starts from a trainee's
// real past performance instead of from zero.
package history

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ParsedSession is one logged workout from an export file.
type ParsedSession struct {
	Name      string
	Date      time.Time
	Duration  string
	Exercises []ParsedExercise
}

// ParsedExercise is one exercise block within a session.
type ParsedExercise struct {
	Number     int
	Name       string
	Equipment  string
	TargetReps int
	Sets       []ParsedSet
}

// ParsedSet is a single logged set. RIR ("reps in reserve") is the
// effort scale most log exports use; the importer converts it to RPE.
type ParsedSet struct {
	Number           int
	WeightKg         float64
	IsBodyweightPlus bool
	Reps             int
	RIR              float64
	IsWarmup         bool
}

var (
	// sessionLineRe matches: "Push Day";"2026-02-19 4:54 h";"1:02 hr"
	sessionLineRe = regexp.MustCompile(`^"(.+)";"(\d{4}-\d{2}-\d{2}\s+\d+:\d+)\s+h";"(.+)"$`)

	// exerciseLineRe matches: "1. Bench Press · Barbell · 8 reps"[;"warmup info"]
	exerciseLineRe = regexp.MustCompile(`^"(\d+)\.\s+(.+?)(?:\s+·\s+(\S.*?))?\s+·\s+(\d+)\s+reps(.*?)"(?:;"(.+)")?$`)

	// setLineRe matches: 1;115;8;1
	setLineRe = regexp.MustCompile(`^(\d+);(.+);(\d+);(.+)$`)

	// warmupSetRe matches: WU1 · 37,5 kg · 9 reps
	warmupSetRe = regexp.MustCompile(`WU(\d+)\s+·\s+(.+?)\s+kg\s+·\s+(\d+)\s+reps`)

	// columnsLineRe matches the repeated column header: #;KG;REPS;RIR
	columnsLineRe = regexp.MustCompile(`^#;KG;REPS;RIR$`)
)

// parser accumulates sessions while scanning an export line by line.
type parser struct {
	sessions []ParsedSession
	session  *ParsedSession
	exercise *ParsedExercise
}

// Parse reads a training log export and returns its sessions in file
// order. Unrecognized lines (notes, app metadata) are skipped.
func Parse(r io.Reader) ([]ParsedSession, error) {
	p := &parser{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := p.line(strings.TrimSpace(scanner.Text())); err != nil {
			return nil, err
		}
	}
	p.flushSession()
	return p.sessions, scanner.Err()
}

func (p *parser) line(line string) error {
	if line == "" {
		// Blank line separates sessions.
		p.flushSession()
		return nil
	}
	if columnsLineRe.MatchString(line) {
		return nil
	}

	if m := sessionLineRe.FindStringSubmatch(line); m != nil {
		p.flushSession()
		date, err := parseSessionDate(m[2])
		if err != nil {
			return fmt.Errorf("parsing session date %q: %w", m[2], err)
		}
		p.session = &ParsedSession{Name: m[1], Date: date, Duration: m[3]}
		return nil
	}

	if m := exerciseLineRe.FindStringSubmatch(line); m != nil {
		if p.session == nil {
			return fmt.Errorf("exercise without session: %q", line)
		}
		p.flushExercise()
		num, _ := strconv.Atoi(m[1])
		targetReps, _ := strconv.Atoi(m[4])
		p.exercise = &ParsedExercise{
			Number:     num,
			Name:       strings.TrimSpace(m[2]),
			Equipment:  strings.TrimSpace(m[3]),
			TargetReps: targetReps,
		}
		if m[6] != "" {
			p.exercise.Sets = append(p.exercise.Sets, parseWarmups(m[6])...)
		}
		return nil
	}

	if m := setLineRe.FindStringSubmatch(line); m != nil {
		if p.exercise == nil {
			return fmt.Errorf("set data without exercise: %q", line)
		}
		num, _ := strconv.Atoi(m[1])
		weight, isBW := parseWeight(m[2])
		reps, _ := strconv.Atoi(m[3])
		// Exports mark abandoned sets with a zero rep count. There is
		// nothing to record for those.
		if reps <= 0 {
			return nil
		}
		p.exercise.Sets = append(p.exercise.Sets, ParsedSet{
			Number:           num,
			WeightKg:         weight,
			IsBodyweightPlus: isBW,
			Reps:             reps,
			RIR:              parseDecimal(m[4]),
		})
		return nil
	}

	return nil
}

func (p *parser) flushExercise() {
	if p.exercise != nil && p.session != nil {
		p.session.Exercises = append(p.session.Exercises, *p.exercise)
	}
	p.exercise = nil
}

func (p *parser) flushSession() {
	p.flushExercise()
	if p.session != nil {
		p.sessions = append(p.sessions, *p.session)
	}
	p.session = nil
}

// parseSessionDate handles both "2026-02-19 4:54" and "2026-02-19 16:54".
func parseSessionDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02 3:04"} {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse date %q", s)
}

// parseWarmups extracts warmup sets from the exercise header's trailing
// cell, e.g. "WU1 · 37,5 kg · 9 reps<br>WU2 · 72,5 kg · 7 reps".
func parseWarmups(s string) []ParsedSet {
	var sets []ParsedSet
	for _, part := range strings.Split(s, "<br>") {
		m := warmupSetRe.FindStringSubmatch(part)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		weight, isBW := parseWeight(m[2])
		reps, _ := strconv.Atoi(m[3])
		if reps <= 0 {
			continue
		}
		sets = append(sets, ParsedSet{
			Number:           num,
			WeightKg:         weight,
			IsBodyweightPlus: isBW,
			Reps:             reps,
			IsWarmup:         true,
		})
	}
	return sets
}

// parseWeight handles European decimals and bodyweight-plus notation:
// "+35" is 35 kg added to bodyweight, "102,5" is 102.5 kg.
func parseWeight(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	isBW := strings.HasPrefix(s, "+")
	s = strings.TrimPrefix(s, "+")
	return parseDecimal(s), isBW
}

// parseDecimal accepts both comma and dot decimal separators.
func parseDecimal(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
