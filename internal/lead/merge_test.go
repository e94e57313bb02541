package lead

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOverlay_NeverErasesWithAbsentValues(t *testing.T) {
	dst := Fields{City: "Austin", State: "TX", Age: Int(41), TobaccoUser: Bool(false)}
	src := Fields{City: "", State: "CA", Email: "a@b.co"}

	Overlay(&dst, src)

	assert.Equal(t, "Austin", dst.City)
	assert.Equal(t, "CA", dst.State)
	assert.Equal(t, "a@b.co", dst.Email)
	assert.Equal(t, 41, *dst.Age)
	assert.False(t, *dst.TobaccoUser)
}

func TestOverlay_SkipsResolverOwnedFields(t *testing.T) {
	dst := Fields{Price: Float(10), Notes: "base"}
	src := Fields{Price: Float(99), Notes: "other", LineItems: []LineItem{{Kind: KindAddon}}}

	Overlay(&dst, src)

	assert.Equal(t, 10.0, *dst.Price)
	assert.Equal(t, "base", dst.Notes)
	assert.Empty(t, dst.LineItems)
}

func TestFillMissing_KeepsExisting(t *testing.T) {
	dst := Fields{FirstName: "Ana", VendorData: map[string]string{"vertical": "health"}}
	src := Fields{FirstName: "Anna", LastName: "Diaz", VendorData: map[string]string{"vertical": "auto", "sub": "x"}}

	FillMissing(&dst, src)

	assert.Equal(t, "Ana", dst.FirstName)
	assert.Equal(t, "Diaz", dst.LastName)
	assert.Equal(t, map[string]string{"vertical": "health", "sub": "x"}, dst.VendorData)
}

func TestApplyEnrichment_FillsPriceOnlyWhenAbsent(t *testing.T) {
	dst := Fields{}
	ApplyEnrichment(&dst, Fields{Price: Float(5), Notes: "n", City: "Reno"})
	assert.Equal(t, 5.0, *dst.Price)
	assert.Equal(t, "n", dst.Notes)
	assert.Equal(t, "Reno", dst.City)

	ApplyEnrichment(&dst, Fields{Price: Float(7), City: "Elko"})
	assert.Equal(t, 5.0, *dst.Price)
	assert.Equal(t, "Reno", dst.City)
}

func TestChanges(t *testing.T) {
	base := Fields{Phone: "(555) 123-4567", Age: Int(30)}

	assert.False(t, Changes(base, Fields{Phone: "(555) 123-4567", Age: Int(30)}))
	assert.False(t, Changes(base, Fields{Price: Float(12)}))
	assert.True(t, Changes(base, Fields{City: "Boise"}))
	assert.True(t, Changes(base, Fields{VendorData: map[string]string{"k": "v"}}))
}

func TestMissing(t *testing.T) {
	names := Missing(Fields{City: "Boise"}, Fields{City: "Nampa", Zipcode: "83651", Gender: "Male"})
	assert.ElementsMatch(t, []string{"zipcode", "gender"}, names)
}
