package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"economic-news-bot/lib/helpers"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const quoteURL = "https://zenquotes.io/api/random"

var quoteClient = &http.Client{Timeout: 10 * time.Second}

// CommandQuote fetches a random quote from zenquotes.io, cached for an hour.
func CommandQuote() (string, error) {
	log.Debug("processing command /quote")

	if cachedItem, found := cacheGet("quote"); found {
		return cachedItem.Caption, nil
	}

	resp, err := quoteClient.Get(quoteURL)
	if err != nil {
		return "", errors.Wrap(err, "command /quote")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("command /quote: unexpected status %d", resp.StatusCode)
	}

	var quotes []struct {
		Q string `json:"q"`
		A string `json:"a"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&quotes); err != nil {
		return "", errors.Wrap(err, "command /quote: decode response")
	}
	if len(quotes) == 0 {
		return "", errors.New("command /quote: empty response")
	}

	text := fmt.Sprintf("💬 _%s_\n\n— %s",
		helpers.EscapeMarkdownV2(quotes[0].Q),
		helpers.EscapeMarkdownV2(quotes[0].A))
	cacheSet("quote", nil, text, time.Hour)
	return text, nil
}
