// Command seeder writes a synthetic answer corpus in the CSV format the
// answerbank build command reads.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"math/rand/v2"
	"os"
	"slices"
	"strings"

	"github.com/poiesic/answerbank/builder"
)

var taxonomy = map[string]map[string][]string{
	"Welfare": {
		"Pension":    {"Eligibility", "Payments", "Survivors"},
		"Childcare":  {"Allowance", "Daycare"},
		"Disability": {"Registration", "Support Services"},
	},
	"Transport": {
		"Roads":   {"Potholes", "Street Lights", "Snow Removal"},
		"Transit": {"Bus Routes", "Fares"},
		"Parking": {"Permits", "Fines"},
	},
	"Environment": {
		"Waste": {"Collection Schedule", "Recycling", "Bulky Items"},
		"Noise": {"Construction", "Neighbours"},
		"Air":   {"Dust", "Odour"},
	},
	"Tax": {
		"Property": {"Assessment", "Payment Deadlines"},
		"Local":    {"Refunds", "Exemptions"},
	},
}

var questions = []string{
	"How do I apply for %s?",
	"When will my %s be processed?",
	"Who is responsible for %s in my area?",
	"Can I appeal a decision about %s?",
	"What documents are needed for %s?",
	"Why was my request about %s rejected?",
	"Is there a fee for %s?",
	"How long does %s usually take?",
}

var answers = []string{
	"Requests regarding %s are handled by the %s office and are usually processed within %d business days.",
	"Please submit the online form for %s. The %s office will contact you within %d days.",
	"Decisions on %s can be appealed in writing to the %s office within %d days of notice.",
	"There is no fee for %s. Contact the %s office if you have not heard back after %d days.",
	"Our records show that %s falls under the %s office. Processing normally takes %d working days.",
}

var agencies = []string{"Civil Affairs", "Urban Planning", "Public Works", "Finance", "Social Services", "Environment Bureau"}

func main() {
	count := flag.Int("n", 1000, "number of rows to generate")
	seed := flag.Uint64("seed", 1, "random seed")
	src := flag.String("src", "", "file of question<TAB>answer lines to use instead of generated text")
	out := flag.String("out", "", "output CSV file (default stdout)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	var rows []builder.Row
	if *src != "" {
		lines, err := linesFromFile(*src)
		if err != nil {
			slog.Error("reading seed file", "file", *src, "err", err)
			os.Exit(1)
		}
		rows = rowsFromPairs(lines, *seed)
	} else {
		rows = generate(*count, *seed)
	}

	w := io.Writer(os.Stdout)
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			slog.Error("creating output", "file", *out, "err", err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}
	bw := bufio.NewWriter(w)
	if err := builder.WriteCSV(bw, rows); err != nil {
		slog.Error("writing corpus", "err", err)
		os.Exit(1)
	}
	if err := bw.Flush(); err != nil {
		slog.Error("writing corpus", "err", err)
		os.Exit(1)
	}
	slog.Info("corpus written", "rows", len(rows))
}

// leaves returns every major/middle/minor path in a stable order.
func leaves() [][3]string {
	var out [][3]string
	for _, major := range sortedKeys(taxonomy) {
		for _, middle := range sortedKeys(taxonomy[major]) {
			for _, minor := range taxonomy[major][middle] {
				out = append(out, [3]string{major, middle, minor})
			}
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// generate produces n rows spread over the taxonomy. The same seed always
// yields the same corpus.
func generate(n int, seed uint64) []builder.Row {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	paths := leaves()
	rows := make([]builder.Row, 0, n)
	for i := range n {
		path := paths[rng.IntN(len(paths))]
		topic := strings.ToLower(path[2])
		agency := agencies[rng.IntN(len(agencies))]
		rows = append(rows, builder.Row{
			Code:     fmt.Sprintf("Q%06d", i+1),
			Path:     path,
			Question: fmt.Sprintf(questions[rng.IntN(len(questions))], topic),
			Answer:   fmt.Sprintf(answers[rng.IntN(len(answers))], topic, agency, 3+rng.IntN(28)),
			Metadata: map[string]string{
				builder.MetaAgency1: agency,
				builder.MetaAgency2: agencies[rng.IntN(len(agencies))],
			},
		})
	}
	return rows
}

// rowsFromPairs files each question<TAB>answer line under a random leaf.
// Lines without a tab are skipped.
func rowsFromPairs(lines iter.Seq[string], seed uint64) []builder.Row {
	rng := rand.New(rand.NewPCG(seed, seed))
	paths := leaves()
	var rows []builder.Row
	for line := range lines {
		question, answer, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		rows = append(rows, builder.Row{
			Code:     fmt.Sprintf("S%06d", len(rows)+1),
			Path:     paths[rng.IntN(len(paths))],
			Question: question,
			Answer:   answer,
		})
	}
	return rows
}

// linesFromFile returns an iterator over lines in a file.
func linesFromFile(filename string) (iter.Seq[string], error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	return func(yield func(string) bool) {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if !yield(scanner.Text()) {
				return
			}
		}
	}, nil
}
