package fielddist

import "testing"

func TestIncrementAccumulates(t *testing.T) {
	d := New()
	d.Increment("title")
	d.Increment("title")
	d.Increment("author")

	if d.Count("title") != 2 {
		t.Errorf("Count(\"title\") = %d, want 2", d.Count("title"))
	}
	if d.Count("author") != 1 {
		t.Errorf("Count(\"author\") = %d, want 1", d.Count("author"))
	}
}

func TestDecrementRemovesZeroEntries(t *testing.T) {
	d := New()
	d.Increment("title")
	d.Decrement("title")

	if _, ok := d["title"]; ok {
		t.Errorf("expected \"title\" to be removed once its count reaches zero")
	}
	if d.Count("title") != 0 {
		t.Errorf("Count(\"title\") = %d, want 0", d.Count("title"))
	}
}

func TestDecrementOnAbsentFieldIsNoop(t *testing.T) {
	d := New()
	d.Decrement("missing")
	if len(d) != 0 {
		t.Errorf("expected empty distribution, got %v", d)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	d := New()
	d.Increment("title")

	clone := d.Clone()
	clone.Increment("title")

	if d.Count("title") != 1 {
		t.Errorf("original mutated by clone: Count(\"title\") = %d, want 1", d.Count("title"))
	}
	if clone.Count("title") != 2 {
		t.Errorf("Clone Count(\"title\") = %d, want 2", clone.Count("title"))
	}
}
