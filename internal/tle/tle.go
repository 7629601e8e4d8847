// Package tle seeds the orbit of a session from a two-line element set.
//
// Propagation uses SGP4 from go-satellite. Its output frame, TEME, is taken
// as the inertial frame of the simulation; the NED frame has no mapping.
package tle

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"gonum.org/v1/gonum/spatial/r3"
)

const lineLen = 69

var (
	ErrFormat      = errors.New("tle: malformed element set")
	ErrPropagation = errors.New("tle: sgp4 propagation failed")
)

// Elements is a parsed two-line element set ready to propagate.
type Elements struct {
	Name  string
	Line1 string
	Line2 string
	Epoch time.Time

	sat satellite.Satellite
}

// Parse validates the two lines and initialises SGP4 with WGS-72 constants.
// The lines are checked before go-satellite sees them, since it calls
// log.Fatal on input it cannot read.
func Parse(name, line1, line2 string) (*Elements, error) {
	line1 = strings.TrimRight(line1, " \r\n")
	line2 = strings.TrimRight(line2, " \r\n")
	if err := validate(line1, line2); err != nil {
		return nil, err
	}
	epoch, err := parseEpoch(line1[18:32])
	if err != nil {
		return nil, err
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)
	if sat.Error != 0 {
		return nil, fmt.Errorf("%w: init code=%d %s", ErrPropagation, sat.Error, sat.ErrorStr)
	}
	return &Elements{
		Name:  strings.TrimSpace(name),
		Line1: line1,
		Line2: line2,
		Epoch: epoch,
		sat:   sat,
	}, nil
}

// Read parses an element set in two-line or three-line (named) form.
// Blank lines are skipped.
func Read(r io.Reader) (*Elements, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if l := strings.TrimRight(sc.Text(), " \r"); l != "" {
			lines = append(lines, l)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	switch len(lines) {
	case 2:
		return Parse("", lines[0], lines[1])
	case 3:
		return Parse(strings.TrimPrefix(lines[0], "0 "), lines[1], lines[2])
	}
	return nil, fmt.Errorf("%w: expected 2 or 3 lines, got %d", ErrFormat, len(lines))
}

func validate(line1, line2 string) error {
	if len(line1) != lineLen {
		return fmt.Errorf("%w: line 1 has %d characters", ErrFormat, len(line1))
	}
	if len(line2) != lineLen {
		return fmt.Errorf("%w: line 2 has %d characters", ErrFormat, len(line2))
	}
	if line1[0] != '1' || line2[0] != '2' {
		return fmt.Errorf("%w: lines must start with 1 and 2", ErrFormat)
	}
	if line1[2:7] != line2[2:7] {
		return fmt.Errorf("%w: catalog numbers %q and %q differ", ErrFormat, line1[2:7], line2[2:7])
	}
	for i, l := range []string{line1, line2} {
		if got, want := checksum(l), l[lineLen-1]; got != want {
			return fmt.Errorf("%w: line %d checksum %c, computed %c", ErrFormat, i+1, want, got)
		}
	}
	return nil
}

// checksum is the modulo-10 sum of the digits, counting '-' as one.
func checksum(line string) byte {
	sum := 0
	for _, c := range line[:lineLen-1] {
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return byte('0' + sum%10)
}

// parseEpoch reads the YYDDD.DDDDDDDD field. Two-digit years from 57 on
// are in the 1900s.
func parseEpoch(field string) (time.Time, error) {
	field = strings.TrimSpace(field)
	if len(field) < 5 {
		return time.Time{}, fmt.Errorf("%w: epoch %q", ErrFormat, field)
	}
	yy, err := strconv.Atoi(field[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: epoch year: %v", ErrFormat, err)
	}
	day, err := strconv.ParseFloat(field[2:], 64)
	if err != nil || day < 1 || day >= 367 {
		return time.Time{}, fmt.Errorf("%w: epoch day %q", ErrFormat, field[2:])
	}

	year := 2000 + yy
	if yy >= 57 {
		year = 1900 + yy
	}
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return start.Add(time.Duration((day - 1) * float64(24*time.Hour))).Round(time.Millisecond), nil
}

// StateAt propagates to t and returns TEME position and velocity in metres
// and metres per second. SGP4 takes whole seconds.
func (e *Elements) StateAt(t time.Time) (pos, vel r3.Vec, err error) {
	t = t.UTC()
	p, v := satellite.Propagate(e.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	pos = r3.Scale(1e3, r3.Vec{X: p.X, Y: p.Y, Z: p.Z})
	vel = r3.Scale(1e3, r3.Vec{X: v.X, Y: v.Y, Z: v.Z})
	for _, c := range []float64{pos.X, pos.Y, pos.Z, vel.X, vel.Y, vel.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return r3.Vec{}, r3.Vec{}, fmt.Errorf("%w: non-finite state at %s", ErrPropagation, t.Format(time.RFC3339))
		}
	}
	// below the surface or beyond GEO is a decayed or garbage element set
	if r := r3.Norm(pos); r < 6.2e6 || r > 5e7 {
		return r3.Vec{}, r3.Vec{}, fmt.Errorf("%w: radius %.0f m at %s", ErrPropagation, r, t.Format(time.RFC3339))
	}
	return pos, vel, nil
}

// Overrides returns the session initialization overrides for the state at t.
func (e *Elements) Overrides(t time.Time) (map[string]any, error) {
	pos, vel, err := e.StateAt(t)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"position": []float64{pos.X, pos.Y, pos.Z},
		"velocity": []float64{vel.X, vel.Y, vel.Z},
	}, nil
}
