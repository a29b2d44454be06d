// Package catalog reads course records from the shared admin database.
package catalog

import (
	"context"
	"errors"
	"fmt"

	supabase "github.com/supabase-community/supabase-go"
)

var ErrNotFound = errors.New("course not found")

type Course struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Client struct {
	sb *supabase.Client
}

func New(sb *supabase.Client) *Client {
	return &Client{sb: sb}
}

func (c *Client) GetCourse(ctx context.Context, id string) (Course, error) {
	_ = ctx
	var result []Course
	_, err := c.sb.From("courses").Select("*", "", false).Eq("id", id).Limit(1, "").ExecuteTo(&result)
	if err != nil {
		return Course{}, fmt.Errorf("get course %s: %w", id, err)
	}
	if len(result) == 0 {
		return Course{}, ErrNotFound
	}
	return result[0], nil
}
