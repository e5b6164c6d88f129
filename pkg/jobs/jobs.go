// Package jobs reads the line-oriented input files: the job list of a sweep
// and the address list of a balance report.
package jobs

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lisanmuaddib/balance-sweeper/pkg/sweep"
)

// Schema is the field layout of a job line.
type Schema string

const (
	// SchemaNamed lines are name,credential,address,recipient
	SchemaNamed Schema = "named"
	// SchemaAnonymous lines are credential,address,recipient
	SchemaAnonymous Schema = "anonymous"
)

// ParseSchema validates a schema name.
func ParseSchema(s string) (Schema, error) {
	switch Schema(strings.ToLower(strings.TrimSpace(s))) {
	case SchemaNamed:
		return SchemaNamed, nil
	case SchemaAnonymous:
		return SchemaAnonymous, nil
	default:
		return "", fmt.Errorf("unknown input schema %q (want %q or %q)", s, SchemaNamed, SchemaAnonymous)
	}
}

func (s Schema) fields() int {
	if s == SchemaAnonymous {
		return 3
	}
	return 4
}

// AddressValidator rejects malformed addresses.
type AddressValidator func(address string) error

// LineError reports the first malformed line of an input file.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// ParseJobs reads one job per line. Blank lines and lines starting with #
// are ignored; any other malformed line aborts with a *LineError. validate
// may be nil to accept any non-empty address.
func ParseJobs(r io.Reader, schema Schema, validate AddressValidator) ([]sweep.AccountJob, error) {
	want := schema.fields()

	var jobs []sweep.AccountJob
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) != want {
			return nil, &LineError{Line: lineNo, Err: fmt.Errorf("expected %d fields, got %d", want, len(fields))}
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
			if fields[i] == "" {
				return nil, &LineError{Line: lineNo, Err: fmt.Errorf("field %d is empty", i+1)}
			}
		}

		job := sweep.AccountJob{Line: lineNo}
		if schema == SchemaAnonymous {
			job.Credential, job.Address, job.Recipient = fields[0], fields[1], fields[2]
		} else {
			job.Name, job.Credential, job.Address, job.Recipient = fields[0], fields[1], fields[2], fields[3]
		}

		if validate != nil {
			if err := validate(job.Address); err != nil {
				return nil, &LineError{Line: lineNo, Err: fmt.Errorf("account address: %w", err)}
			}
			if err := validate(job.Recipient); err != nil {
				return nil, &LineError{Line: lineNo, Err: fmt.Errorf("recipient address: %w", err)}
			}
		}

		jobs = append(jobs, job)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read jobs: %w", err)
	}

	return jobs, nil
}

// LoadJobs opens path and parses it with ParseJobs.
func LoadJobs(path string, schema Schema, validate AddressValidator) ([]sweep.AccountJob, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open job file: %w", err)
	}
	defer f.Close()

	jobs, err := ParseJobs(f, schema, validate)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return jobs, nil
}

// ReadAddresses reads one address per line. Blank lines become empty
// entries so the output can be joined line by line with the input.
func ReadAddresses(r io.Reader) ([]string, error) {
	var addresses []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		addresses = append(addresses, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read addresses: %w", err)
	}
	return addresses, nil
}
