// Package asm builds a vm.Program from source text. The grammar is
// line-oriented: a `.data`/`.code` directive selects the current section,
// `#` starts a comment, a bare `name:` line is a label, a `name: value`
// line inside `.data` defines a data constant, and anything else is an
// instruction mnemonic followed by space-separated operands. Building runs
// in two passes: labels are recorded against instruction indices in a
// first pass, then mnemonics and operands are parsed in a second. Bare
// symbols stay strings and are resolved against labels or data at
// execution time.
package asm

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"opvm/vm"
)

var (
	commentPattern = regexp.MustCompile(`#.*$`)
	offsetPattern  = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_]*)\[(.*)\]$`)
	offsetTermRe   = regexp.MustCompile(`[+\-*/%]|[^+\-*/%]+`)

	escapeSeqReplacements = map[string]string{
		`\n`: "\x00ESC_N\x00",
		`\t`: "\x00ESC_T\x00",
		`\\`: "\x00ESC_BS\x00",
	}
)

func insertEscapeSeqReplacements(s string) string {
	for orig, repl := range escapeSeqReplacements {
		s = strings.ReplaceAll(s, orig, repl)
	}
	return s
}

func revertEscapeSeqReplacements(s string) string {
	repl := map[string]string{"\x00ESC_N\x00": "\n", "\x00ESC_T\x00": "\t", "\x00ESC_BS\x00": `\`}
	for orig, v := range repl {
		s = strings.ReplaceAll(s, orig, v)
	}
	return s
}

// Build lexes and assembles source text into a runnable Program.
func Build(source string) (*vm.Program, error) {
	lines := strings.Split(source, "\n")

	type rawLine struct {
		mnemonic string
		operands []string
	}

	program := vm.NewProgram()
	section := "code"
	var raw []rawLine

	for lineNo, line := range lines {
		line = commentPattern.ReplaceAllString(line, "")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ".") {
			section = strings.ToLower(strings.TrimPrefix(line, "."))
			continue
		}

		if section == "data" {
			name, value, ok := strings.Cut(line, ":")
			if !ok {
				return nil, fmt.Errorf("line %d: expected 'name: value' in .data section", lineNo+1)
			}
			name = strings.TrimSpace(name)
			v, err := parseLiteral(strings.TrimSpace(value))
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo+1, err)
			}
			program.Data[name] = v
			continue
		}

		if strings.HasSuffix(line, ":") && !strings.Contains(strings.TrimSuffix(line, ":"), " ") {
			label := strings.TrimSuffix(line, ":")
			program.Labels[label] = len(raw)
			continue
		}

		fields := splitOperands(line)
		if len(fields) == 0 {
			continue
		}
		raw = append(raw, rawLine{mnemonic: fields[0], operands: fields[1:]})
	}

	for i, rl := range raw {
		op, ok := vm.ParseOpCode(strings.ToLower(rl.mnemonic))
		if !ok {
			return nil, fmt.Errorf("instruction %d: unknown mnemonic '%s'", i, rl.mnemonic)
		}
		operands := make([]vm.Value, 0, len(rl.operands))
		for _, tok := range rl.operands {
			v, err := parseOperand(tok)
			if err != nil {
				return nil, fmt.Errorf("instruction %d: %w", i, err)
			}
			operands = append(operands, v)
		}
		program.Instructions = append(program.Instructions, vm.NewInstruction(op, operands...))
	}

	return program, nil
}

// splitOperands tokenizes a line on whitespace, keeping quoted strings as a
// single token.
func splitOperands(line string) []string {
	var tokens []string
	var cur strings.Builder
	inQuote := byte(0)

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case inQuote != 0:
			cur.WriteByte(c)
			if c == inQuote {
				inQuote = 0
			}
		case c == '\'' || c == '"':
			inQuote = c
			cur.WriteByte(c)
		case c == ' ' || c == '\t':
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return tokens
}

// parseOperand resolves one source token to a Value: a register name,
// a register-with-offsets expression, or a literal (parseLiteral).
func parseOperand(tok string) (vm.Value, error) {
	if m := offsetPattern.FindStringSubmatch(tok); m != nil {
		reg, ok := vm.ParseRegister(m[1])
		if !ok {
			return vm.Value{}, fmt.Errorf("'%s' is not a register", m[1])
		}
		offsets, err := parseOffsetTerms(m[2])
		if err != nil {
			return vm.Value{}, err
		}
		return vm.RegisterOffsetValue(reg, offsets), nil
	}

	if reg, ok := vm.ParseRegister(tok); ok {
		return vm.RegisterValue(reg), nil
	}

	return parseLiteral(tok)
}

// parseOffsetTerms tokenizes a register-with-offsets body into left-to-
// right terms: "4+rb-2" -> [(4,none), (rb,+), (2,-)], each term's operator
// applied against the running accumulator in order.
func parseOffsetTerms(body string) ([]vm.RegisterOffset, error) {
	matches := offsetTermRe.FindAllString(body, -1)
	if len(matches) == 0 {
		return nil, errors.New("empty offset expression")
	}

	var terms []vm.RegisterOffset
	op := vm.OffsetNone
	for _, tok := range matches {
		switch tok {
		case "+":
			op = vm.OffsetAdd
		case "-":
			op = vm.OffsetSub
		case "*":
			op = vm.OffsetMul
		case "/":
			op = vm.OffsetDiv
		case "%":
			op = vm.OffsetRem
		default:
			v, err := parseOperand(strings.TrimSpace(tok))
			if err != nil {
				return nil, err
			}
			terms = append(terms, vm.RegisterOffset{Value: v, Operator: op})
			op = vm.OffsetNone
		}
	}
	return terms, nil
}

// parseLiteral handles numeric (decimal/hex/float), char, quoted string,
// bool, and bare-symbol literals. A token that doesn't match any of those
// shapes is treated as a bare symbol, resolved later against the data
// segment or a label.
func parseLiteral(tok string) (vm.Value, error) {
	switch {
	case tok == "":
		return vm.Value{}, errors.New("empty operand")
	case tok == "true":
		return vm.BoolValue(true), nil
	case tok == "false":
		return vm.BoolValue(false), nil
	case strings.HasPrefix(tok, "'") && strings.HasSuffix(tok, "'") && len(tok) >= 2:
		unescaped := revertEscapeSeqReplacements(insertEscapeSeqReplacements(tok[1 : len(tok)-1]))
		runes := []rune(unescaped)
		if len(runes) != 1 {
			return vm.Value{}, fmt.Errorf("'%s' is not a single character literal", tok)
		}
		return vm.CharValue(runes[0]), nil
	case strings.HasPrefix(tok, "\"") && strings.HasSuffix(tok, "\"") && len(tok) >= 2:
		unescaped := revertEscapeSeqReplacements(insertEscapeSeqReplacements(tok[1 : len(tok)-1]))
		return vm.StringValue(unescaped), nil
	case strings.HasPrefix(tok, "0x"):
		n, err := strconv.ParseInt(strings.TrimPrefix(tok, "0x"), 16, 64)
		if err != nil {
			return vm.Value{}, err
		}
		return vm.IntValue(n), nil
	case strings.Contains(tok, "."):
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return vm.Value{}, err
		}
		return vm.FloatValue(f), nil
	default:
		if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
			return vm.IntValue(n), nil
		}
		// Not a recognized literal shape: treat as a bare symbol, resolved
		// against the program's data segment or a label at execution time.
		return vm.StringValue(tok), nil
	}
}
