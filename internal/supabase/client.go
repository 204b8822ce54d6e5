package supabase

import (
	"fmt"

	"github.com/supabase-community/supabase-go"
)

// Client talks to PostgREST with the service role key; every caller is the
// backend itself, never an end user.
type Client struct {
	rest *supabase.Client
}

func NewClient(url, serviceKey string) (*Client, error) {
	client, err := supabase.NewClient(url, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return &Client{rest: client}, nil
}

// insert appends one row and asks PostgREST for no representation back.
func (c *Client) insert(table string, row interface{}) error {
	if _, _, err := c.rest.From(table).Insert(row, false, "", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}
