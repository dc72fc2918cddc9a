package quality

import "testing"

func TestProfileIsAllowed(t *testing.T) {
	p := HD1080pProfile()

	if p.IsAllowed(1) { // SDTV
		t.Error("SDTV should not be allowed in HD-1080p profile")
	}
	if !p.IsAllowed(10) { // WEBDL-1080p
		t.Error("WEBDL-1080p should be allowed in HD-1080p profile")
	}
	if p.IsAllowed(15) { // WEBDL-2160p
		t.Error("WEBDL-2160p should not be allowed in HD-1080p profile")
	}
}

func TestIsRankUpgrade(t *testing.T) {
	p := DefaultProfile() // cutoff Bluray-1080p (11)

	if !p.IsRankUpgrade(4, 10) {
		t.Error("HDTV-720p to WEBDL-1080p should be an upgrade")
	}
	if p.IsRankUpgrade(10, 4) {
		t.Error("Downgrade should not count as an upgrade")
	}
	if p.IsRankUpgrade(11, 17) {
		t.Error("No upgrade should be proposed once the cutoff is met")
	}
	if p.IsRankUpgrade(10, 10) {
		t.Error("Same rank is not an upgrade")
	}

	hd := HD1080pProfile()
	if hd.IsRankUpgrade(4, 15) {
		t.Error("Upgrade to a disallowed quality should be rejected")
	}
}

func TestMeetsCutoff(t *testing.T) {
	p := DefaultProfile()
	p.CutoffFormatScore = 50

	if p.MeetsCutoff(10, 100) {
		t.Error("Below quality cutoff should not meet cutoff")
	}
	if p.MeetsCutoff(11, 25) {
		t.Error("Below format score cutoff should not meet cutoff")
	}
	if !p.MeetsCutoff(11, 50) {
		t.Error("At both cutoffs should meet cutoff")
	}
}

func TestProfileSerializationRoundTrip(t *testing.T) {
	p := DefaultProfile()
	p.FormatScores = map[int64]int{3: 25, 7: -10}

	itemsJSON, err := SerializeItems(p.Items)
	if err != nil {
		t.Fatalf("SerializeItems failed: %v", err)
	}
	items, err := DeserializeItems(itemsJSON)
	if err != nil {
		t.Fatalf("DeserializeItems failed: %v", err)
	}
	if len(items) != len(Qualities) {
		t.Errorf("Expected %d items, got %d", len(Qualities), len(items))
	}

	scoresJSON, err := SerializeFormatScores(p.FormatScores)
	if err != nil {
		t.Fatalf("SerializeFormatScores failed: %v", err)
	}
	scores, err := DeserializeFormatScores(scoresJSON)
	if err != nil {
		t.Fatalf("DeserializeFormatScores failed: %v", err)
	}
	if scores[3] != 25 || scores[7] != -10 {
		t.Errorf("Unexpected scores after round trip: %v", scores)
	}
}
