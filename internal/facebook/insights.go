package facebook

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/fbpage-agent/internal/models"
)

type insightsResponse struct {
	Data []struct {
		Name   string `json:"name"`
		Values []struct {
			Value   map[string]float64 `json:"value"`
			EndTime string             `json:"end_time"`
		} `json:"values"`
	} `json:"data"`
}

// HourlyFans averages page_fans_online over the returned days. Graph reports
// those hours in Pacific time; the result is shifted into the client's location.
func (c *Client) HourlyFans(ctx context.Context, dest models.Destination) ([24]float64, error) {
	var curve [24]float64

	query := url.Values{}
	query.Set("metric", "page_fans_online")
	query.Set("period", "day")

	var resp insightsResponse
	if err := c.get(ctx, "/"+dest.ID+"/insights", dest.AccessToken, query, &resp); err != nil {
		return curve, fmt.Errorf("failed to read insights: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Values) == 0 {
		return curve, errors.New("no page_fans_online data")
	}

	var sums [24]float64
	days := 0
	for _, v := range resp.Data[0].Values {
		if len(v.Value) == 0 {
			continue
		}
		days++
		for k, n := range v.Value {
			h, err := strconv.Atoi(k)
			if err != nil || h < 0 || h > 23 {
				continue
			}
			sums[h] += n
		}
	}
	if days == 0 {
		return curve, errors.New("no page_fans_online data")
	}

	pacific := pacificTime()
	ref := time.Now()
	for h, total := range sums {
		local := time.Date(ref.Year(), ref.Month(), ref.Day(), h, 0, 0, 0, pacific).In(c.location).Hour()
		curve[local] += total / float64(days)
	}
	return curve, nil
}

func pacificTime() *time.Location {
	if loc, err := time.LoadLocation("America/Los_Angeles"); err == nil {
		return loc
	}
	return time.FixedZone("PST", -8*60*60)
}
