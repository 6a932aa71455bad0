package extract

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"vk-archive-loader/internal/model"
)

// monthPrefixes maps the first three letters of a month name, Russian
// genitive or English, to its number. "мая" is the genitive of "май".
var monthPrefixes = map[string]int{
	"янв": 1, "фев": 2, "мар": 3, "апр": 4, "мая": 5, "май": 5,
	"июн": 6, "июл": 7, "авг": 8, "сен": 9, "окт": 10, "ноя": 11, "дек": 12,
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

// NormalizeDate turns "12 янв 2020" style text into 2020-01-12. Only the
// first three words are looked at; anything unreadable is the no_date bucket.
func NormalizeDate(text string) string {
	fields := strings.Fields(strings.ReplaceAll(text, "_", " "))
	if len(fields) < 3 {
		return model.NoDateBucket
	}
	day, err := strconv.Atoi(fields[0])
	if err != nil || day < 1 || day > 31 {
		return model.NoDateBucket
	}
	month, ok := monthPrefixes[prefix(strings.ToLower(strings.Trim(fields[1], ".,")), 3)]
	if !ok {
		return model.NoDateBucket
	}
	year, err := strconv.Atoi(strings.TrimRight(fields[2], ".,"))
	if err != nil || year < 1000 || year > 9999 {
		return model.NoDateBucket
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}

func prefix(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// messageDate reads the date out of a message header such as
// "Анна К., 12 янв 2020 в 15:30:00": the words after the last ", ".
func messageDate(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return model.NoDateBucket
	}
	if i := strings.LastIndex(header, ", "); i >= 0 {
		header = header[i+2:]
	}
	return NormalizeDate(header)
}
