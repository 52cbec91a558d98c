// Package codec translates between charge parameters and the line protocol
// spoken by the sock dispenser / coin acceptor firmware.
package codec

import (
	"strconv"
	"strings"

	"github.com/kidzoona/kiosk/internal/domain"
)

// Terminator ends every line on the wire, in both directions
const Terminator = "\r\n"

const (
	markerPaid     = "PAID:"
	markerComplete = "PAYMENT_COMPLETE"
	markerNoSocks  = "No socks ordered"
)

// Command is one outbound line without its terminator
type Command string

// String returns the bare command, e.g. "B2,3#20"
func (c Command) String() string { return string(c) }

// Bytes returns the command as written to the device
func (c Command) Bytes() []byte { return []byte(string(c) + Terminator) }

// Encode builds the dispense-and-charge command for adult and kid sock
// quantities and the number of coin pulses to collect
func Encode(adult, kid, pulses int) Command {
	p := strconv.Itoa(pulses)
	switch {
	case adult > 0 && kid > 0:
		return Command("B" + strconv.Itoa(adult) + "," + strconv.Itoa(kid) + "#" + p)
	case adult > 0:
		return Command("A" + strconv.Itoa(adult) + "#" + p)
	case kid > 0:
		return Command("C" + strconv.Itoa(kid) + "#" + p)
	default:
		return Command("N0#" + p)
	}
}

// Decode classifies one inbound line. It never fails: anything that cannot
// be classified comes back as an Unrecognized event, with Err set when the
// line looked like a PAID report.
func Decode(line string) domain.DeviceEvent {
	line = strings.TrimRight(line, "\r\n")

	if strings.Contains(line, markerComplete) || strings.Contains(line, markerNoSocks) {
		ev := domain.TransactionComplete(line)
		if strings.Contains(line, markerPaid) {
			if amount, ok := parseAmount(line); ok {
				ev.Amount, ev.HasAmount = amount, true
			}
		}
		return ev
	}

	if strings.Contains(line, markerPaid) {
		amount, ok := parseAmount(line)
		if !ok {
			return domain.Unrecognized(line, domain.ErrMalformedAmount)
		}
		return domain.AmountUpdate(amount, line)
	}

	return domain.Unrecognized(line, nil)
}

// parseAmount reads the decimal digits following the first ':' in line,
// ignoring leading spaces and anything after the digits
func parseAmount(line string) (int, bool) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return 0, false
	}
	rest := strings.TrimLeft(line[idx+1:], " \t")

	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
