package fusion

import (
	"regexp"
	"strings"
)

// operatorPrefixPattern strips the numeric operator prefix some feeds put in
// front of the train number, e.g. "1:1111406H".
var operatorPrefixPattern = regexp.MustCompile(`^[0-9]+:`)

// trainNumberPattern captures the operational train number out of a feed trip
// identifier: an optional four digit rolling stock or operator code, zero
// padding, then three or four digits and the service letter.
var trainNumberPattern = regexp.MustCompile(`^(?:[0-9]{4})?0*([0-9]{3,4})([A-Za-z])$`)

// NormalizeTrainNumber reduces a realtime feed trip identifier to the train
// number the timetable uses, e.g. "1:1111406H" and "42000906G" become "406H"
// and "906G". Normalization is idempotent; identifiers that do not look like
// train numbers come back unchanged apart from case.
func NormalizeTrainNumber(id string) string {
	s := operatorPrefixPattern.ReplaceAllString(strings.TrimSpace(id), "")
	m := trainNumberPattern.FindStringSubmatch(s)
	if m == nil {
		return strings.ToUpper(s)
	}
	number := strings.TrimLeft(m[1], "0")
	if number == "" {
		number = "0"
	}
	return number + strings.ToUpper(m[2])
}
