package profile

import (
	"strconv"
	"strings"
)

// ZodiacSign is a western zodiac sign. ZodiacNone means the birthday is unknown or unparsable.
type ZodiacSign int

const (
	ZodiacNone ZodiacSign = iota
	Aries
	Taurus
	Gemini
	Cancer
	Leo
	Virgo
	Libra
	Scorpio
	Sagittarius
	Capricorn
	Aquarius
	Pisces
)

var zodiacNames = [...]string{
	ZodiacNone:  "",
	Aries:       "Aries",
	Taurus:      "Taurus",
	Gemini:      "Gemini",
	Cancer:      "Cancer",
	Leo:         "Leo",
	Virgo:       "Virgo",
	Libra:       "Libra",
	Scorpio:     "Scorpio",
	Sagittarius: "Sagittarius",
	Capricorn:   "Capricorn",
	Aquarius:    "Aquarius",
	Pisces:      "Pisces",
}

func (z ZodiacSign) String() string {
	if z < 0 || int(z) >= len(zodiacNames) {
		return ""
	}
	return zodiacNames[z]
}

// zodiacBoundaries[m] splits month m: days up to lastDay are early, later days are late.
var zodiacBoundaries = [13]struct {
	lastDay     int
	early, late ZodiacSign
}{
	1:  {19, Capricorn, Aquarius},
	2:  {18, Aquarius, Pisces},
	3:  {20, Pisces, Aries},
	4:  {19, Aries, Taurus},
	5:  {20, Taurus, Gemini},
	6:  {20, Gemini, Cancer},
	7:  {22, Cancer, Leo},
	8:  {22, Leo, Virgo},
	9:  {22, Virgo, Libra},
	10: {22, Libra, Scorpio},
	11: {21, Scorpio, Sagittarius},
	12: {21, Sagittarius, Capricorn},
}

// ZodiacFromDate accepts "yyyy-MM-dd" or "dd.MM.yyyy".
func ZodiacFromDate(date string) ZodiacSign {
	date = strings.TrimSpace(date)
	if date == "" {
		return ZodiacNone
	}

	var dayPart, monthPart string
	if strings.Contains(date, "-") {
		parts := strings.Split(date, "-")
		if len(parts) != 3 {
			return ZodiacNone
		}
		dayPart, monthPart = parts[2], parts[1]
	} else {
		parts := strings.Split(date, ".")
		if len(parts) != 3 {
			return ZodiacNone
		}
		dayPart, monthPart = parts[0], parts[1]
	}

	day, err := strconv.Atoi(dayPart)
	if err != nil {
		return ZodiacNone
	}
	month, err := strconv.Atoi(monthPart)
	if err != nil || month < 1 || month > 12 {
		return ZodiacNone
	}

	b := zodiacBoundaries[month]
	if day <= b.lastDay {
		return b.early
	}
	return b.late
}
