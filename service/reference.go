package service

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/trakkie-id/paynow/model"
)

const referenceSegmentLen = 20

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// cleanText strips markup and control characters from free text sent to the
// gateway or stored in the ledger.
func cleanText(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// merchantReference correlates a transaction with its site, course and payer.
// Each segment is capped at 20 characters.
func merchantReference(site string, offer *model.EnrolmentOffer, payer *model.Payer) string {
	sitePart := truncate(site, referenceSegmentLen)
	coursePart := truncate(fmt.Sprintf("%d:%s", offer.CourseID, offer.CourseShortName), referenceSegmentLen)
	userPart := truncate(fmt.Sprintf("%d:%s %s", payer.ID, payer.LastName, payer.FirstName), referenceSegmentLen)

	return cleanText(strings.ToUpper(sitePart + ":" + coursePart + ":" + userPart))
}
