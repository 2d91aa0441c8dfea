package policy

import "time"

// resolveWallClock converts a local calendar wall-clock moment (year, month,
// day, hour, minute, second) in loc into a single, canonical instant,
// returned in loc, implementing the DST rules from spec §4.2:
//
//   - Gap (the wall-clock moment was skipped by a spring-forward transition):
//     the chosen instant is the first valid local instant at or after the
//     nominal time — i.e. the transition boundary itself.
//   - Overlap (the wall-clock moment occurs twice due to a fall-back
//     transition): the earlier of the two UTC candidates is chosen.
//   - Otherwise: the ordinary, unambiguous UTC equivalent.
func resolveWallClock(loc *time.Location, year int, month time.Month, day, hour, min, sec int) time.Time {
	naive := time.Date(year, month, day, hour, min, sec, 0, loc)
	if roundTripMatches(naive, loc, year, month, day, hour, min, sec) {
		return naive
	}

	// naive is Go's own normalization of an ambiguous or non-existent wall
	// clock moment; it is not trustworthy as-is. Find the surrounding DST
	// transition by bisecting a window around it, comparing zone offsets
	// of the two (always well-defined) absolute instants at the ends.
	lo := naive.Add(-2 * time.Hour)
	hi := naive.Add(2 * time.Hour)
	_, loOffset := lo.Zone()
	_, hiOffset := hi.Zone()
	if loOffset == hiOffset {
		// No nearby transition after all (shouldn't happen given the
		// mismatch above, but fall back to the naive value defensively).
		return naive
	}

	for hi.Sub(lo) > time.Second {
		mid := lo.Add(hi.Sub(lo) / 2)
		_, midOffset := mid.Zone()
		if midOffset == loOffset {
			lo = mid
		} else {
			hi = mid
		}
	}
	transition := hi // first instant at the new offset

	if hiOffset > loOffset {
		// Spring-forward gap: the nominal local time never existed.
		// Choose the first valid instant at or after it.
		return transition
	}

	// Fall-back overlap: two UTC instants share this local wall clock.
	// The earlier one uses the offset in effect before the transition.
	nominalUTCSeconds := time.Date(year, month, day, hour, min, sec, 0, time.UTC).Unix()
	earlier := time.Unix(nominalUTCSeconds-int64(loOffset), 0).In(loc)
	return earlier
}

// roundTripMatches reports whether naive, when re-read through loc, still
// shows the exact wall-clock fields requested. A mismatch signals that Go
// silently normalized a gap or overlap.
func roundTripMatches(naive time.Time, loc *time.Location, year int, month time.Month, day, hour, min, sec int) bool {
	back := naive.In(loc)
	y, m, d := back.Date()
	return y == year && m == month && d == day && back.Hour() == hour && back.Minute() == min && back.Second() == sec
}
