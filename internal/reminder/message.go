package reminder

import (
	"fmt"
	"strings"
	"time"

	"github.com/pathakanu/mealremind/internal/model"
)

const fallbackMeal = "your meal"

// ComposeMessage renders the text delivered when a meal's reminder fires.
func ComposeMessage(meal *model.Meal) string {
	name := strings.TrimSpace(meal.Name)
	if name == "" {
		name = fallbackMeal
	}
	dishes := strings.Join(meal.DishNames(), ", ")
	if dishes == "" {
		dishes = fallbackMeal
	}
	return fmt.Sprintf("It's mealtime! Time for %s. You have: %s!", name, dishes)
}

// RemindAt combines a plan-local date and time of day into a UTC instant.
func RemindAt(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	at, err := time.ParseInLocation(model.DateLayout+" "+model.TimeLayout, strings.TrimSpace(date)+" "+strings.TrimSpace(clock), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("meal time %q on %q: %w", clock, date, model.ErrInvalidInput)
	}
	return at.UTC(), nil
}
