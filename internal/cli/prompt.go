package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hyperjump/cordsearch/internal/models"
)

// AskFunc answers a validated query.
type AskFunc func(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error)

// Session is an interactive question loop: it prompts for a question, an optional
// year range and an optional language, re-prompting until each answer is valid.
type Session struct {
	in     *bufio.Scanner
	out    io.Writer
	limits models.QueryLimits
	format SearchOutputFormat
}

// NewSession reads answers from in and writes prompts and results to out.
func NewSession(in io.Reader, out io.Writer, limits models.QueryLimits, format SearchOutputFormat) *Session {
	if limits.DefaultK <= 0 {
		limits.DefaultK = models.DefaultK
	}
	if limits.MinYear == 0 {
		limits.MinYear = models.DefaultMinYear
	}
	if limits.MaxYear == 0 {
		limits.MaxYear = models.DefaultMaxYear
	}
	if len(limits.Languages) == 0 {
		limits.Languages = models.DefaultLanguages
	}
	return &Session{in: bufio.NewScanner(in), out: out, limits: limits, format: format}
}

// Run answers questions until the input ends or ctx is cancelled. Errors from ask are
// printed and the loop continues.
func (s *Session) Run(ctx context.Context, ask AskFunc) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		q, err := s.ReadQuery()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		resp, err := ask(ctx, q)
		if err != nil {
			fmt.Fprintf(s.out, "\nSearch failed: %v\n", err)
			continue
		}
		if err := WriteSearchResults(s.out, resp, s.format); err != nil {
			return err
		}
	}
}

// ReadQuery prompts for one question and its filters. It returns io.EOF when the input ends.
func (s *Session) ReadQuery() (*models.SearchQuery, error) {
	question, err := s.prompt("\nAsk your question: ")
	if err != nil {
		return nil, err
	}
	q := &models.SearchQuery{Query: question}

	for {
		raw, err := s.prompt(fmt.Sprintf("\nEarliest year (i.e. %d or None): ", s.limits.MaxYear-4))
		if err != nil {
			return nil, err
		}
		year, msg := s.parseYear(raw, nil)
		if msg == "" {
			q.DateMin = year
			break
		}
		fmt.Fprintln(s.out, msg)
	}
	for {
		raw, err := s.prompt(fmt.Sprintf("\nLatest year (i.e. %d or None): ", s.limits.MaxYear))
		if err != nil {
			return nil, err
		}
		year, msg := s.parseYear(raw, q.DateMin)
		if msg == "" {
			q.DateMax = year
			break
		}
		fmt.Fprintln(s.out, msg)
	}
	for {
		raw, err := s.prompt(fmt.Sprintf("\nLanguage (i.e. %s or None): ", strings.Join(s.limits.Languages, ", ")))
		if err != nil {
			return nil, err
		}
		lang, ok := s.parseLanguage(raw)
		if ok {
			q.Language = lang
			break
		}
		fmt.Fprintln(s.out, "Language not valid. Please re-enter")
	}

	k := s.limits.DefaultK
	q.K = &k
	if err := q.Validate(s.limits); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *Session) prompt(label string) (string, error) {
	fmt.Fprint(s.out, label)
	if !s.in.Scan() {
		if err := s.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(s.in.Text()), nil
}

// none reports whether an answer means "no constraint".
func none(raw string) bool {
	return raw == "" || strings.EqualFold(raw, "none")
}

// parseYear returns the year, or a message explaining why raw must be re-entered.
func (s *Session) parseYear(raw string, earliest *int) (*int, string) {
	if none(raw) {
		return nil, ""
	}
	year, err := strconv.Atoi(raw)
	if err != nil {
		return nil, "The year is not an integer. Please re-enter"
	}
	if year > s.limits.MaxYear {
		return nil, fmt.Sprintf("The year can not be later than %d. Please re-enter", s.limits.MaxYear)
	}
	if year < s.limits.MinYear {
		return nil, fmt.Sprintf("The year can not be earlier than %d. Please re-enter", s.limits.MinYear)
	}
	if earliest != nil && year < *earliest {
		return nil, fmt.Sprintf("The year must not be before %d. Please re-enter", *earliest)
	}
	return &year, ""
}

func (s *Session) parseLanguage(raw string) (string, bool) {
	if none(raw) {
		return "", true
	}
	lang := strings.ToLower(raw)
	for _, l := range s.limits.Languages {
		if l == lang {
			return lang, true
		}
	}
	return "", false
}
