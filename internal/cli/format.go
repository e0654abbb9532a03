// Package cli provides formatting and rendering utilities for terminal output.
package cli

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatTokens formats a token count with human-readable suffixes.
// e.g., 1234 -> "1.2K", 1234567 -> "1.2M"
func FormatTokens(n int64) string {
	abs := n
	if abs < 0 {
		abs = -abs
	}

	switch {
	case abs >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", float64(n)/1_000_000_000)
	case abs >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case abs >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return strconv.FormatInt(n, 10)
	}
}

// FormatCost formats a USD amount for cost previews and receipts.
// Sub-micro amounts render as "<$0.000001" instead of a rounded zero;
// sub-cent amounts keep six decimals.
func FormatCost(cost float64) string {
	switch {
	case cost == 0:
		return "$0.00"
	case cost < 0.000001:
		return "<$0.000001"
	case cost < 0.01:
		return fmt.Sprintf("$%.6f", cost)
	default:
		return fmt.Sprintf("$%.4f", cost)
	}
}

// FormatPrice formats a per-thousand-token price, switching to a per-million
// unit when the per-thousand figure would be unreadably small.
func FormatPrice(perKTok float64) string {
	switch {
	case perKTok < 0.000001:
		return fmt.Sprintf("$%.2f/M tokens", perKTok*1_000_000)
	case perKTok < 0.001:
		return fmt.Sprintf("$%.2f/K tokens", perKTok*1000)
	default:
		return fmt.Sprintf("$%.4f/K tokens", perKTok)
	}
}

// FormatUSDC formats a settled token amount.
func FormatUSDC(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 6, 64) + " USDC"
}

// ShortHash abbreviates a transaction hash to its first 10 and last 8 characters.
func ShortHash(hash string) string {
	if len(hash) <= 20 {
		return hash
	}
	return hash[:10] + "..." + hash[len(hash)-8:]
}

// FormatDuration formats seconds into a human-readable duration.
// e.g., 3725 -> "1h 2m", 125 -> "2m", 45 -> "45s"
func FormatDuration(secs int64) string {
	if secs <= 0 {
		return "0s"
	}

	hours := secs / 3600
	mins := (secs % 3600) / 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	if mins > 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%ds", secs)
}

// FormatNumber adds comma separators to an integer.
// e.g., 1234567 -> "1,234,567"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}

	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

// FormatPercent formats a 0-1 float as a percentage string.
func FormatPercent(f float64) string {
	return fmt.Sprintf("%.1f%%", f*100)
}
