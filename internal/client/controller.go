package client

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/picky/internal/model"
)

// Controller owns the three collections and their shared status line.
type Controller struct {
	Shopping *Collection[model.ShoppingItem, *model.ShoppingItem]
	Larder   *Collection[model.LarderItem, *model.LarderItem]
	Meals    *Collection[model.MealItem, *model.MealItem]
	Status   *StatusLine
}

func NewController(c *Client) *Controller {
	status := NewStatusLine()
	return &Controller{
		Shopping: NewCollection(NewResource[model.ShoppingItem, *model.ShoppingItem](c), status),
		Larder:   NewCollection(NewResource[model.LarderItem, *model.LarderItem](c), status),
		Meals:    NewCollection(NewResource[model.MealItem, *model.MealItem](c), status),
		Status:   status,
	}
}

// Load fetches all three collections concurrently. Each collection keeps its
// own error; a failing collection does not stop the others from loading.
func (c *Controller) Load(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return c.Shopping.Load(ctx) })
	g.Go(func() error { return c.Larder.Load(ctx) })
	g.Go(func() error { return c.Meals.Load(ctx) })
	_ = g.Wait()

	err := errors.Join(c.Shopping.Err(), c.Larder.Err(), c.Meals.Err())
	if err != nil {
		c.Status.Set(LevelError, "Failed to load some items: %v", err)
		return err
	}
	c.Status.Set(LevelSuccess, "Loaded all items")
	return nil
}

// RemoveCompleted clears shopping items already in the cart.
func (c *Controller) RemoveCompleted(ctx context.Context, confirm func(count int) bool) (int, error) {
	return c.Shopping.RemoveFlagged(ctx, confirm)
}

// RemoveFlagged clears larder items marked for reorder.
func (c *Controller) RemoveFlagged(ctx context.Context, confirm func(count int) bool) (int, error) {
	return c.Larder.RemoveFlagged(ctx, confirm)
}
