package schema

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestProduct_Validate(t *testing.T) {
	tests := []struct {
		name    string
		product Product
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid product",
			product: Product{ID: "p1", Name: "Lemon tart"},
		},
		{
			name:    "missing id",
			product: Product{Name: "Lemon tart"},
			wantErr: true,
			errMsg:  "id is required",
		},
		{
			name:    "name too long",
			product: Product{ID: "p1", Name: strings.Repeat("a", 501)},
			wantErr: true,
			errMsg:  "name must be 500 characters or less",
		},
		{
			name:    "dangling category is allowed",
			product: Product{ID: "p1", Name: "Tart", CategoryID: "cat_missing"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.product.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %q, want to contain %q", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestCategory_Validate(t *testing.T) {
	tests := []struct {
		name     string
		category Category
		wantErr  bool
	}{
		{"valid", Category{ID: "cat_1", Name: "Cake"}, false},
		{"blank name", Category{ID: "cat_1", Name: "   "}, true},
		{"missing id", Category{Name: "Cake"}, true},
		{"sub without id", Category{ID: "cat_1", Name: "Cake", SubCategories: []SubCategory{{Name: "Mini"}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.category.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTags_UnmarshalLenient(t *testing.T) {
	tests := []struct {
		name string
		json string
		want Tags
	}{
		{"strings", `["cake","cat_1"]`, Tags{"cake", "cat_1"}},
		{"numbers coerced", `["cake", 12, 3.5]`, Tags{"cake", "12", "3.5"}},
		{"bools coerced", `[true]`, Tags{"true"}},
		{"junk dropped", `[null, {"a":1}, ["x"], "ok"]`, Tags{"ok"}},
		{"bare string", `"birthday"`, Tags{"birthday"}},
		{"null", `null`, nil},
		{"object", `{"x":1}`, nil},
		{"empty strings dropped", `["", "a"]`, Tags{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Tags
			if err := json.Unmarshal([]byte(tt.json), &got); err != nil {
				t.Fatalf("Unmarshal() failed: %v", err)
			}
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tags = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestMillis_UnmarshalLenient(t *testing.T) {
	ts := time.Date(2026, 2, 6, 7, 31, 47, 0, time.UTC)

	tests := []struct {
		name string
		json string
		want Millis
	}{
		{"number", `1770363107410`, 1770363107410},
		{"float", `1770363107410.0`, 1770363107410},
		{"numeric string", `"1770363107410"`, 1770363107410},
		{"rfc3339", `"` + ts.Format(time.RFC3339) + `"`, Millis(ts.UnixMilli())},
		{"garbage", `"yesterday"`, 0},
		{"null", `null`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Millis
			if err := json.Unmarshal([]byte(tt.json), &got); err != nil {
				t.Fatalf("Unmarshal() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Millis = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPrice_Unmarshal(t *testing.T) {
	var p struct {
		A Price `json:"a"`
		B Price `json:"b"`
		C Price `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a":"$12","b":12.5,"c":"Contact"}`), &p); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	if p.A != "$12" {
		t.Errorf("A = %q, want $12", p.A)
	}
	if p.B != "12.5" {
		t.Errorf("B = %q, want 12.5", p.B)
	}
	if !p.C.IsContactMe() {
		t.Errorf("C = %q, want contact sentinel", p.C)
	}
}

func TestPrice_NumbersNormalized(t *testing.T) {
	var p struct {
		A Price `json:"a"`
		B Price `json:"b"`
		C Price `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a":12.50,"b":1e2,"c":"12.50"}`), &p); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	if p.A != "12.5" {
		t.Errorf("A = %q, want 12.5", p.A)
	}
	if p.B != "100" {
		t.Errorf("B = %q, want 100", p.B)
	}
	if p.C != "12.50" {
		t.Errorf("C = %q, want the string kept as written", p.C)
	}
}

func TestPrice_Amount(t *testing.T) {
	tests := []struct {
		price  Price
		want   string
		wantOK bool
	}{
		{"32", "32", true},
		{"$ 12.50", "12.5", true},
		{"  7 ", "7", true},
		{PriceContactMe, "", false},
		{"from 20", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := tt.price.Amount()
		if ok != tt.wantOK {
			t.Errorf("Amount(%q) ok = %v, want %v", tt.price, ok, tt.wantOK)
			continue
		}
		if ok && got.String() != tt.want {
			t.Errorf("Amount(%q) = %s, want %s", tt.price, got, tt.want)
		}
	}
}

func TestEncodeDecode_DocumentIDWins(t *testing.T) {
	p := Product{ID: "p1", Name: "Croissant", Tags: Tags{"breakfast"}, CreatedAt: 42}
	doc, err := Encode(p)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	if doc.ID != "p1" || doc.CreatedAt != 42 {
		t.Fatalf("doc = %+v, want id p1 created 42", doc)
	}

	doc.ID = "p2"
	got, err := Decode[Product](doc)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if got.ID != "p2" {
		t.Errorf("ID = %q, want p2", got.ID)
	}
	if got.Name != "Croissant" {
		t.Errorf("Name = %q, want Croissant", got.Name)
	}
}

func TestEncode_RejectsInvalid(t *testing.T) {
	if _, err := Encode(Category{ID: "cat_1"}); err == nil {
		t.Error("Encode() should reject a category without a name")
	}
}

func TestDecodeAll_SkipsBroken(t *testing.T) {
	docs := []Document{
		{ID: "c1", Body: json.RawMessage(`{"name":"Cake"}`)},
		{ID: "c2", Body: json.RawMessage(`{"name":`)},
		{ID: "c3", Body: json.RawMessage(`{"name":"Bread"}`)},
	}
	got, skipped := DecodeAll[Category](docs)
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	if len(got) != 2 || got[0].ID != "c1" || got[1].ID != "c3" {
		t.Errorf("got %+v, want c1 and c3", got)
	}
}

func TestFeaturedVideos_Capped(t *testing.T) {
	videos := []FeaturedVideo{
		{VideoURL: "https://v/1"},
		{VideoURL: ""},
		{VideoURL: "https://v/2", ThumbnailURL: "https://t/2"},
		{VideoURL: "https://v/3"},
		{VideoURL: "https://v/4"},
	}
	s, err := NewFeaturedVideos(videos)
	if err != nil {
		t.Fatalf("NewFeaturedVideos() failed: %v", err)
	}
	if s.ID != SettingsFeaturedVideos {
		t.Errorf("ID = %q, want %q", s.ID, SettingsFeaturedVideos)
	}
	got, err := s.FeaturedVideos()
	if err != nil {
		t.Fatalf("FeaturedVideos() failed: %v", err)
	}
	if len(got) != MaxFeaturedVideos {
		t.Fatalf("len = %d, want %d", len(got), MaxFeaturedVideos)
	}
	if got[2].VideoURL != "https://v/3" {
		t.Errorf("third video = %q, want https://v/3", got[2].VideoURL)
	}
}

func TestKind_Mirrorable(t *testing.T) {
	for _, k := range AllKinds {
		want := k != KindDrafts
		if k.Mirrorable() != want {
			t.Errorf("%s.Mirrorable() = %v, want %v", k, k.Mirrorable(), want)
		}
	}
	if Kind("orders").Mirrorable() {
		t.Error("unknown kind should not be mirrorable")
	}
	if _, err := ParseKind("orders"); err == nil {
		t.Error("ParseKind() should reject unknown kinds")
	}
}

func TestNewCategoryID(t *testing.T) {
	id := NewCategoryID()
	if !IsCategoryID(id) {
		t.Errorf("NewCategoryID() = %q, want %q prefix", id, CategoryIDPrefix)
	}
	if IsCategoryID("cat_") {
		t.Error("bare prefix should not count as a category id")
	}
}
