package pet

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func float(v float64) *float64 { return &v }

func TestFilterMatch(t *testing.T) {
	t.Parallel()

	husky := Record{
		Link:        String("https://example.com/a/1"),
		County:      String("Timis"),
		City:        String("Timisoara"),
		Category:    String("Caini"),
		Breed:       String("Husky"),
		Description: String("Pui de husky, jucausi si mici"),
		Price:       Price{WithoutDiscount: float(900)},
	}
	discounted := Record{
		Category: String("Pisici"),
		Breed:    String("Birmaneza"),
		Price:    Price{AfterDiscount: float(300), BeforeDiscount: float(500)},
	}
	free := Record{Category: String("Adoptii")}

	testCases := []struct {
		name   string
		filter Filter
		record Record
		want   bool
	}{
		{"empty filter matches", Filter{}, free, true},
		{"exact county", Filter{County: String("Timis")}, husky, true},
		{"county mismatch", Filter{County: String("Cluj")}, husky, false},
		{"blank fields ignored", Filter{County: String(""), City: nil}, husky, true},
		{"exact breed is case sensitive", Filter{Breed: String("husky")}, husky, false},
		{"breed alternation is a regex", Filter{Breed: String("husky|malamut")}, husky, true},
		{"max price on undiscounted", Filter{MaxPrice: float(1000)}, husky, true},
		{"min price excludes", Filter{MinPrice: float(1000)}, husky, false},
		{"range uses discounted price", Filter{MaxPrice: float(350)}, discounted, true},
		{"price bound never matches missing price", Filter{MaxPrice: float(1200)}, free, false},
		{"description regex ignores case", Filter{DescriptionRegex: String("(MIC|talie mica)")}, husky, true},
		{"description regex on missing description", Filter{DescriptionRegex: String("mic")}, free, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, tc.filter.Match(tc.record))
		})
	}
}

func TestFilterValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Filter{MinPrice: float(10), MaxPrice: float(10)}.Validate())

	err := Filter{MinPrice: float(20), MaxPrice: float(10)}.Validate()
	require.True(t, errors.Is(err, ErrInvalidFilter))

	err = Filter{DescriptionRegex: String("(unclosed")}.Validate()
	require.ErrorIs(t, err, ErrInvalidFilter)

	err = Filter{Breed: String("husky|(")}.Validate()
	require.ErrorIs(t, err, ErrInvalidFilter)
}

func TestPriceEffective(t *testing.T) {
	t.Parallel()

	require.Nil(t, Price{}.Effective())
	require.Equal(t, 5.0, *Price{WithoutDiscount: float(5)}.Effective())
	require.Equal(t, 3.0, *Price{AfterDiscount: float(3), BeforeDiscount: float(4)}.Effective())
}
