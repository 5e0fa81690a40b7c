package domain

const (
	CollectionFree    = "profilesFree"
	CollectionPro     = "profilesPro"
	CollectionElite   = "profilesElite"
	CollectionBackups = "backups"
	CollectionAudit   = "downgradeLogs"
)

const (
	BackupKeyAll   = "allProfiles"
	BackupKeyElite = "allProfilesElite"
)

const (
	KeyAllProfiles      = "allProfiles"
	KeyAllProfilesFree  = "allProfilesFree"
	KeyAllProfilesPro   = "allProfilesPro"
	KeyAllProfilesElite = "allProfilesElite"
	KeyAllProfilesHash  = "allProfilesHash"
	KeyUserProfile      = "userProfile"
	KeyUserProfileFree  = "userProfileFree"
	KeyUserProfilePro   = "userProfilePro"
	KeyUserProfileElite = "userProfileElite"
	KeyUserData         = "userData"

	keyUserProfilePrefix = "userProfile_"
)

const (
	MaxGallery            = 3
	MaxTalentCategories   = 3
	MaxResourceCategories = 1
	DefaultHighlightDays  = 7
)

const DowngradeReasonTrialExpired = "trial-expired"

// Tiers lists every tier in consolidation order.
var Tiers = []Tier{TierFree, TierPro, TierElite}

// Collection returns the remote collection holding records of the tier.
func (t Tier) Collection() string {
	switch t {
	case TierFree:
		return CollectionFree
	case TierPro:
		return CollectionPro
	case TierElite:
		return CollectionElite
	default:
		return ""
	}
}

// SlotKey returns the local cache key of the session's own record for the tier.
func (t Tier) SlotKey() string {
	switch t {
	case TierFree:
		return KeyUserProfileFree
	case TierPro:
		return KeyUserProfilePro
	case TierElite:
		return KeyUserProfileElite
	default:
		return ""
	}
}

// SnapshotKey returns the local cache key of the per-tier aggregate snapshot.
func (t Tier) SnapshotKey() string {
	switch t {
	case TierFree:
		return KeyAllProfilesFree
	case TierPro:
		return KeyAllProfilesPro
	case TierElite:
		return KeyAllProfilesElite
	default:
		return ""
	}
}

// ProfileStatus is the tag stored on the canonical userProfile mirror.
func (t Tier) ProfileStatus() string {
	switch t {
	case TierFree:
		return "FREE"
	case TierPro:
		return "PRO"
	case TierElite:
		return "ELITE"
	default:
		return ""
	}
}

func IdentitySlotKey(sanitized string) string {
	return keyUserProfilePrefix + sanitized
}
