package reminder

import (
	"errors"
	"testing"
	"time"

	"github.com/pathakanu/mealremind/internal/model"
)

func TestComposeMessage(t *testing.T) {
	tests := []struct {
		name string
		meal model.Meal
		want string
	}{
		{
			name: "named meal",
			meal: model.Meal{Name: "Lunch", Dishes: []model.Dish{{Name: "Pho"}, {Name: "Goi cuon"}}},
			want: "It's mealtime! Time for Lunch. You have: Pho, Goi cuon!",
		},
		{
			name: "missing names",
			meal: model.Meal{Dishes: []model.Dish{{DishID: "x"}}},
			want: "It's mealtime! Time for your meal. You have: your meal!",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComposeMessage(&tt.meal); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRemindAt(t *testing.T) {
	loc := time.FixedZone("ICT", 7*60*60)
	got, err := RemindAt("2030-05-12", "07:30", loc)
	if err != nil {
		t.Fatalf("remind at: %v", err)
	}
	if want := time.Date(2030, 5, 12, 0, 30, 0, 0, time.UTC); !got.Equal(want) || got.Location() != time.UTC {
		t.Fatalf("got %v, want %v", got, want)
	}

	if _, err := RemindAt("2030-05-12", "", loc); !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
