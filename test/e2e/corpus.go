// Package e2e provides end-to-end tests over a generated CORD-style corpus.
package e2e

import (
	"fmt"
)

// Paper is one row of the generated corpus.
type Paper struct {
	ID          string
	Abstract    string
	PublishTime string
	Language    string
	Title       string
	URL         string
	Topic       string
	Subtopic    string
}

// Corpus holds the generated rows, including rows the loader is expected to drop.
type Corpus struct {
	Papers []Paper
	// Valid are the rows that survive loading, in source order.
	Valid []Paper
	// Dropped is the number of rows the loader should reject.
	Dropped int
}

var topics = []struct {
	topic, subtopic, title, abstract string
}{
	{"transmission", "households", "Household transmission", "Secondary attack rates within households were estimated from contact tracing data."},
	{"transmission", "aerosols", "Aerosol spread", "Airborne particles remained viable in indoor air for several hours under controlled conditions."},
	{"prevention", "masks", "Face masks", "Community use of face masks reduced the reproduction number in regional models."},
	{"prevention", "distancing", "Physical distancing", "Mobility reductions preceded the decline of reported cases by about two weeks."},
	{"clinical", "incubation", "Incubation period", "The median incubation period was close to five days with a long right tail."},
	{"clinical", "symptoms", "Loss of smell", "Sudden loss of smell and taste was reported by a large share of mild cases."},
	{"risk", "smoking", "Smoking and severity", "Current smokers showed higher odds of progression to severe disease."},
	{"risk", "comorbidities", "Comorbid conditions", "Hypertension and diabetes were the most common comorbidities among admitted patients."},
	{"therapeutics", "antivirals", "Antiviral candidates", "Several nucleotide analogues inhibited viral replication in cell culture assays."},
	{"vaccines", "antibodies", "Neutralizing antibodies", "Convalescent sera neutralized pseudotyped virus at high dilutions."},
	{"diagnostics", "pcr", "PCR sensitivity", "Nasopharyngeal swabs outperformed throat swabs in paired PCR testing."},
	{"veterinary", "coronavirus", "Animal coronaviruses", "Bovine and porcine coronaviruses share receptor usage with human strains."},
}

var languages = []string{"en", "en", "en", "fr", "es", "de", "zh"}

// BuildCorpus returns n valid papers plus a fixed set of malformed rows. Each valid
// abstract is unique so that querying with it must rank that paper first.
func BuildCorpus(n int) *Corpus {
	c := &Corpus{}
	for i := 0; i < n; i++ {
		t := topics[i%len(topics)]
		p := Paper{
			ID:          fmt.Sprintf("p%07d", i),
			Abstract:    fmt.Sprintf("%s Study %d of cohort %d.", t.abstract, i, i*7%13),
			PublishTime: fmt.Sprintf("%d-%02d-01", 2010+i%11, 1+i%12),
			Language:    languages[i%len(languages)],
			Title:       fmt.Sprintf("%s (%d)", t.title, i),
			URL:         fmt.Sprintf("https://example.org/papers/%d", i),
			Topic:       t.topic,
			Subtopic:    t.subtopic,
		}
		if i%10 == 9 {
			// Some rows lack a date or language.
			p.PublishTime = ""
			p.Language = ""
		}
		c.Papers = append(c.Papers, p)
		c.Valid = append(c.Valid, p)
	}

	malformed := []Paper{
		{ID: "x0000001", Abstract: "Unknown"},
		{ID: "x0000002", Abstract: "   "},
		{ID: "bad", Abstract: "id has the wrong length"},
	}
	if n > 0 {
		malformed = append(malformed, Paper{ID: c.Papers[0].ID, Abstract: "duplicate of the first id"})
	}
	c.Papers = append(c.Papers, malformed...)
	c.Dropped = len(malformed)
	return c
}

// Header is the column layout used by the fixture writers.
var Header = []string{"cord_uid", "abstract", "publish_time", "language", "title", "url", "main_topic", "main_subtopic"}

// Row returns p's values in Header order.
func (p Paper) Row() []string {
	return []string{p.ID, p.Abstract, p.PublishTime, p.Language, p.Title, p.URL, p.Topic, p.Subtopic}
}
