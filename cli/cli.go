// Package cli owns the interactive command surface: tokenizing input lines,
// dispatching to the engine, the login session, and mapping every error
// kind to a one-line message. The storage core never sees raw command text.
package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"stashdb/auth"
	"stashdb/query"
	"stashdb/storage"
	"stashdb/value"
	"stashdb/version"
)

// ErrExit is returned by Execute when the user asks to leave the REPL.
var ErrExit = errors.New("exit")

var errNotLoggedIn = errors.New("must be logged in (use: login <username> <password>)")

// Session is one interactive session: an authenticated identity (or none)
// bound to the shared engine.
type Session struct {
	eng *storage.Engine
	ctx *auth.Context
}

func NewSession(eng *storage.Engine) *Session {
	return &Session{eng: eng}
}

// Execute runs a single command line and returns the message to print.
func (s *Session) Execute(line string) (string, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil
	}
	head, rest := splitWord(line)
	cmd := strings.ToLower(head)

	// create and update take the remainder of the line verbatim so JSON
	// values with spaces and quotes survive untouched.
	if cmd == "create" || cmd == "update" {
		if s.ctx == nil {
			return "", errNotLoggedIn
		}
		key, raw := splitWord(rest)
		if key == "" || raw == "" {
			return "", fmt.Errorf("usage: %s <key> <value>", cmd)
		}
		if cmd == "create" {
			return s.create(key, raw)
		}
		return s.update(key, raw)
	}

	args, err := splitArgs(rest)
	if err != nil {
		return "", err
	}

	switch cmd {
	case "exit", "quit":
		return "", ErrExit
	case "help":
		return helpText, nil
	case "version":
		return version.String(), nil
	case "login":
		return s.login(args)
	case "logout":
		return s.logout()
	}

	// Everything past this point operates on data and requires a login.
	if s.ctx == nil {
		return "", errNotLoggedIn
	}

	switch cmd {
	case "read":
		return s.read(args)
	case "delete":
		return s.delete(args)
	case "list":
		return s.list()
	case "find":
		return s.find(args)
	case "join":
		return s.join(args)
	case "max", "min", "sum", "avg":
		return s.aggregate(cmd, args)
	case "begin":
		return s.begin()
	case "commit":
		return s.commit()
	case "rollback":
		return s.rollback()
	case "import_csv":
		return s.importCSV(args)
	case "export_csv":
		return s.exportCSV(args)
	case "inspect_index":
		return s.inspectIndex(args)
	case "stats":
		return s.stats()
	default:
		return "", fmt.Errorf("unknown command %q (try: help)", cmd)
	}
}

func (s *Session) login(args []string) (string, error) {
	if len(args) != 2 {
		return "", errors.New("usage: login <username> <password>")
	}
	ctx, ok := auth.Authenticate(args[0], args[1])
	if !ok {
		return "", errors.New("invalid username or password")
	}
	s.ctx = &ctx
	return fmt.Sprintf("Logged in as %s (%s)", ctx.User, ctx.Role), nil
}

func (s *Session) logout() (string, error) {
	if s.ctx == nil {
		return "", errors.New("no user is logged in")
	}
	user := s.ctx.User
	s.ctx = nil
	return fmt.Sprintf("Logged out user %s", user), nil
}

func (s *Session) create(key, raw string) (string, error) {
	v, err := s.eng.Create(key, raw)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Inserted: %s -> %s", key, v), nil
}

func (s *Session) read(args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.New("usage: read <key>")
	}
	v, err := s.eng.Read(args[0])
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

func (s *Session) update(key, raw string) (string, error) {
	v, err := s.eng.Update(key, raw)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Updated: %s -> %s", key, v), nil
}

func (s *Session) delete(args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.New("usage: delete <key>")
	}
	if err := s.eng.Delete(*s.ctx, args[0]); err != nil {
		return "", err
	}
	return fmt.Sprintf("Deleted key: %s", args[0]), nil
}

func (s *Session) list() (string, error) {
	entries := s.eng.Entries()
	if len(entries) == 0 {
		return "Database is empty.", nil
	}
	var b strings.Builder
	for i, entry := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", entry.Key, entry.Value)
	}
	return b.String(), nil
}

func (s *Session) find(args []string) (string, error) {
	q, err := query.Parse(args)
	if err != nil {
		return "", err
	}
	keys, err := s.eng.Find(q)
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "No keys found with the specified condition.", nil
	}
	return "Found keys: " + strings.Join(keys, ", "), nil
}

func (s *Session) join(args []string) (string, error) {
	if len(args) != 2 && len(args) != 3 {
		return "", errors.New("usage: join <key1> <key2> [field]")
	}
	field := ""
	if len(args) == 3 {
		field = args[2]
	}
	match, err := s.eng.Join(args[0], args[1], field)
	if err != nil {
		return "", err
	}
	if !match {
		return fmt.Sprintf("No match: %s and %s differ.", args[0], args[1]), nil
	}
	v1, _ := s.eng.Read(args[0])
	v2, _ := s.eng.Read(args[1])
	return fmt.Sprintf("Join result: %s=%s, %s=%s", args[0], v1, args[1], v2), nil
}

func (s *Session) aggregate(fn string, args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("usage: %s <key>", fn)
	}
	var (
		result float64
		err    error
	)
	switch fn {
	case "max":
		result, err = s.eng.Max(args[0])
	case "min":
		result, err = s.eng.Min(args[0])
	case "sum":
		result, err = s.eng.Sum(args[0])
	case "avg":
		result, err = s.eng.Avg(args[0])
	}
	if err != nil {
		return "", err
	}
	label := strings.ToUpper(fn[:1]) + fn[1:]
	return fmt.Sprintf("%s for %s: %s", label, args[0], value.FormatNumber(result)), nil
}

func (s *Session) begin() (string, error) {
	id, err := s.eng.Begin()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Transaction %s started.", id), nil
}

func (s *Session) commit() (string, error) {
	if err := s.eng.Commit(); err != nil {
		return "", err
	}
	return "Transaction committed.", nil
}

func (s *Session) rollback() (string, error) {
	if err := s.eng.Rollback(); err != nil {
		return "", err
	}
	return "Transaction rolled back.", nil
}

func (s *Session) importCSV(args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.New("usage: import_csv <file>")
	}
	report, err := s.eng.ImportCSV(*s.ctx, args[0])
	if err != nil {
		return "", err
	}
	msg := fmt.Sprintf("Imported %d rows from %s", report.Imported, args[0])
	if len(report.Failed) > 0 {
		var b strings.Builder
		b.WriteString(msg)
		fmt.Fprintf(&b, " (%d failed)", len(report.Failed))
		for _, rowErr := range report.Failed {
			fmt.Fprintf(&b, "\n  line %d: %v", rowErr.Line, rowErr.Err)
		}
		return b.String(), nil
	}
	return msg, nil
}

func (s *Session) exportCSV(args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.New("usage: export_csv <file>")
	}
	n, err := s.eng.ExportCSV(*s.ctx, args[0])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Exported %d rows to %s", n, args[0]), nil
}

func (s *Session) inspectIndex(args []string) (string, error) {
	word := ""
	if len(args) > 0 {
		word = args[0]
	}
	buckets := s.eng.InspectFullText(word)
	if len(buckets) == 0 {
		return "No matching index entries.", nil
	}
	tokens := make([]string, 0, len(buckets))
	for tok := range buckets {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)
	var b strings.Builder
	for i, tok := range tokens {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%q: %s", tok, strings.Join(buckets[tok], ", "))
	}
	return b.String(), nil
}

func (s *Session) stats() (string, error) {
	st := s.eng.Stats()
	return fmt.Sprintf(
		"keys=%d exact_terms=%d field_indexes=%d fulltext_terms=%d range_trees=%d range_entries=%d max_tree_height=%d txn_open=%v",
		st.Keys, st.ExactTerms, st.FieldIndexes, st.FullTextTerms,
		st.RangeTrees, st.RangeEntries, st.MaxTreeHeight, st.TxnOpen,
	), nil
}

const helpText = `Commands:
  login <user> <password>      authenticate (stock users: admin, user)
  logout                       end the session
  create <key> <value>         insert a new key
  read <key>                   print the value for a key
  update <key> <value>         replace the value of an existing key
  delete <key>                 remove a key (admin only)
  list                         print all entries
  find <predicate> [sortby <field>] [limit <n>]
      predicates: = <value> | > <n> | < <n> | contains <s>
                  | fulltext <words> | <field> = <value>
                  | <field> > <n> | <field> < <n>
  join <key1> <key2> [field]   compare two entries
  max|min|sum|avg <key>        aggregate a number or list of numbers
  begin | commit | rollback    transaction control
  import_csv <file>            load key,value rows (admin only)
  export_csv <file>            dump all entries (admin only)
  inspect_index [word]         show full-text index buckets
  stats                        engine counters
  version | help | exit`
