package main

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/prudhvinik1/syncboard/internal/models"
)

type opKind int

const (
	opDown opKind = iota
	opMove
	opUp
	opClear
	opSleep
)

type command struct {
	op    opKind
	point models.Point
	pause time.Duration
}

// parseCommand reads one line of a gesture script:
//
//	down | move X Y | up | clear | sleep DURATION
//
// Blank lines and lines starting with # are skipped (ok is false).
func parseCommand(line string) (cmd command, ok bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return command{}, false, nil
	}

	switch strings.ToLower(fields[0]) {
	case "down":
		cmd.op = opDown
	case "up":
		cmd.op = opUp
	case "clear":
		cmd.op = opClear
	case "move":
		if len(fields) != 3 {
			return command{}, false, fmt.Errorf("move needs X and Y: %q", line)
		}
		x, err := parseCoord(fields[1])
		if err != nil {
			return command{}, false, fmt.Errorf("invalid X in %q: %w", line, err)
		}
		y, err := parseCoord(fields[2])
		if err != nil {
			return command{}, false, fmt.Errorf("invalid Y in %q: %w", line, err)
		}
		cmd.op = opMove
		cmd.point = models.Point{X: x, Y: y}
	case "sleep":
		if len(fields) != 2 {
			return command{}, false, fmt.Errorf("sleep needs a duration: %q", line)
		}
		d, err := time.ParseDuration(fields[1])
		if err != nil {
			return command{}, false, fmt.Errorf("invalid duration in %q: %w", line, err)
		}
		cmd.op = opSleep
		cmd.pause = d
	default:
		return command{}, false, fmt.Errorf("unknown command %q", fields[0])
	}
	return cmd, true, nil
}

// parseCoord rejects NaN and infinities, which cannot be encoded as JSON.
func parseCoord(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("coordinate must be finite")
	}
	return v, nil
}
