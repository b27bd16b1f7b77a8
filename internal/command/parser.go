// Package command parses chat-style text addressed to the exchange into
// structured requests. Commands look like:
//
//	@HMSE BUY PUTIN 100 COUNT=3 TIME=5
//	@HMSE SELL ANTIFA 40
//	@HMSE CANCEL PUTIN
//	@HMSE BALANCE
//	@HMSE WITHDRAW 250
//	@HMSE MARKET PUTIN
//	@HMSE TICKER
//
// Anything before the @HMSE trigger is ignored, so the command can sit in
// the middle of a comment. Parsing never fails: unparseable input becomes an
// Unknown or Malformed request.
package command

import (
	"fmt"
	"strconv"
	"strings"
)

// Trigger is the token that marks the start of a command.
const Trigger = "@HMSE"

// Kind tags a parsed request.
type Kind string

const (
	KindBalance   Kind = "BALANCE"
	KindBuy       Kind = "BUY"
	KindSell      Kind = "SELL"
	KindCancel    Kind = "CANCEL"
	KindWithdraw  Kind = "WITHDRAW"
	KindMarket    Kind = "MARKET"
	KindTicker    Kind = "TICKER"
	KindUnknown   Kind = "UNKNOWN"
	KindMalformed Kind = "MALFORMED"
)

// Request is a parsed command. Only the fields relevant to Kind are set.
type Request struct {
	Kind Kind

	Asset  string // BUY, SELL, CANCEL, MARKET
	Price  int64  // BUY (max price), SELL (min price)
	Count  int    // BUY, SELL; defaults to 1
	Ticks  int    // BUY, SELL; lifetime in ticks, 0 when TIME was omitted
	Amount int64  // WITHDRAW

	// Raw holds the unrecognized command word for Unknown requests; Problem
	// explains what went wrong for Malformed ones.
	Raw     string
	Problem string
}

// Parse turns a chat message into a Request.
func Parse(message string) Request {
	tokens := strings.Fields(strings.ToUpper(message))

	start := -1
	for i, tok := range tokens {
		if tok == Trigger {
			start = i
			break
		}
	}
	if start == -1 || start+1 >= len(tokens) {
		return Request{Kind: KindMalformed, Problem: "no command after " + Trigger}
	}

	args := tokens[start+1:]
	named := parseNamed(args)

	switch args[0] {
	case "BALANCE":
		return Request{Kind: KindBalance}
	case "TICKER":
		return Request{Kind: KindTicker}
	case "BUY", "SELL":
		return parseOrder(Kind(args[0]), args, named)
	case "CANCEL", "MARKET":
		if len(args) < 2 {
			return Request{Kind: KindMalformed, Problem: args[0] + " needs an asset name"}
		}
		return Request{Kind: Kind(args[0]), Asset: args[1]}
	case "WITHDRAW":
		if len(args) < 2 {
			return Request{Kind: KindMalformed, Problem: "WITHDRAW needs an amount"}
		}
		amount, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return Request{Kind: KindMalformed, Problem: fmt.Sprintf("%q is not an amount", args[1])}
		}
		return Request{Kind: KindWithdraw, Amount: amount}
	default:
		return Request{Kind: KindUnknown, Raw: args[0]}
	}
}

func parseOrder(kind Kind, args []string, named map[string]string) Request {
	if len(args) < 3 {
		return Request{Kind: KindMalformed, Problem: string(kind) + " needs an asset and a price"}
	}
	price, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return Request{Kind: KindMalformed, Problem: fmt.Sprintf("%q is not a price", args[2])}
	}

	req := Request{Kind: kind, Asset: args[1], Price: price, Count: 1}

	if v, ok := named["COUNT"]; ok {
		count, err := strconv.Atoi(v)
		if err != nil {
			return Request{Kind: KindMalformed, Problem: fmt.Sprintf("COUNT=%q is not a number", v)}
		}
		req.Count = count
	}
	if v, ok := named["TIME"]; ok {
		ticks, err := strconv.Atoi(v)
		if err != nil {
			return Request{Kind: KindMalformed, Problem: fmt.Sprintf("TIME=%q is not a number", v)}
		}
		req.Ticks = ticks
	}
	return req
}

func parseNamed(args []string) map[string]string {
	named := make(map[string]string)
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if ok {
			named[key] = value
		}
	}
	return named
}
