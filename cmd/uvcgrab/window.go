// SPDX-License-Identifier: MIT
package main

import (
	"fmt"
	"strings"
	"time"

	// Embed the IANA zone database so --timezone works in containers and on
	// hosts without /usr/share/zoneinfo.
	_ "time/tzdata"
)

// cliTimeLayout matches stamps like "05-10-2018:06:00:00", day first.
const cliTimeLayout = "02-01-2006:15:04:05"

// tzAreas are the IANA area prefixes tried when a bare city name is given.
var tzAreas = []string{
	"America", "Europe", "Asia", "Africa", "Australia",
	"Pacific", "Atlantic", "Indian", "Antarctica", "US", "Etc",
}

// resolveLocation loads an IANA zone by its full name, falling back to a
// suffix match across the standard areas so a bare city like "Denver"
// resolves to "America/Denver".
func resolveLocation(timezone string) (*time.Location, error) {
	loc, err := time.LoadLocation(timezone)
	if err == nil {
		return loc, nil
	}
	if !strings.Contains(timezone, "/") {
		for _, area := range tzAreas {
			if loc, areaErr := time.LoadLocation(area + "/" + timezone); areaErr == nil {
				return loc, nil
			}
		}
	}
	return nil, fmt.Errorf("unknown time zone %q: %w", timezone, err)
}

// parseWindow converts the start and end stamps into epoch milliseconds,
// interpreting both in the named IANA time zone.
func parseWindow(start, end, timezone string) (int64, int64, error) {
	loc, err := resolveLocation(timezone)
	if err != nil {
		return 0, 0, err
	}

	startTime, err := time.ParseInLocation(cliTimeLayout, start, loc)
	if err != nil {
		return 0, 0, fmt.Errorf("parse window start %q: %w", start, err)
	}
	endTime, err := time.ParseInLocation(cliTimeLayout, end, loc)
	if err != nil {
		return 0, 0, fmt.Errorf("parse window end %q: %w", end, err)
	}
	if !startTime.Before(endTime) {
		return 0, 0, fmt.Errorf("window start %q is not before end %q", start, end)
	}
	return startTime.UnixMilli(), endTime.UnixMilli(), nil
}
