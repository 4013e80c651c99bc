package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"teamnetwork/internal/types"
)

// OrganizationRepo provides access to organization rows. Soft-deleted
// organizations are invisible to every query here.
type OrganizationRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewOrganizationRepo creates an OrganizationRepo backed by the given
// database connection (pool or transaction).
func NewOrganizationRepo(db DBTX, logger *slog.Logger) *OrganizationRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrganizationRepo{db: db, logger: logger}
}

const organizationColumns = `id, slug, name, billing_email, stripe_customer_id,
	alumni_tier, created_at, updated_at, deleted_at`

func scanOrganization(row pgx.Row) (*types.Organization, error) {
	var o types.Organization
	var stripeCustomerID *string
	err := row.Scan(
		&o.ID, &o.Slug, &o.Name, &o.BillingEmail, &stripeCustomerID,
		&o.AlumniTier, &o.CreatedAt, &o.UpdatedAt, &o.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundOrg, "organization not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load organization", err)
	}
	if stripeCustomerID != nil {
		o.StripeCustomerID = *stripeCustomerID
	}
	return &o, nil
}

// GetByID returns the organization with the given ID.
func (r *OrganizationRepo) GetByID(ctx context.Context, id string) (*types.Organization, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+organizationColumns+`
		 FROM organizations
		 WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	return scanOrganization(row)
}

// GetBySlug returns the organization with the given URL slug.
func (r *OrganizationRepo) GetBySlug(ctx context.Context, slug string) (*types.Organization, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+organizationColumns+`
		 FROM organizations
		 WHERE slug = $1 AND deleted_at IS NULL`,
		slug,
	)
	return scanOrganization(row)
}

// Create inserts a new organization. A unique-violation on the slug
// column maps to a conflict error so handlers can report it as a
// user-facing 409.
func (r *OrganizationRepo) Create(ctx context.Context, org *types.Organization) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO organizations
		   (id, slug, name, billing_email, alumni_tier, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`,
		org.ID, org.Slug, org.Name, org.BillingEmail, org.AlumniTier,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return types.NewAppError(types.ErrCodeConflictSlugExists,
				"an organization with this slug already exists", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create organization", err)
	}
	return nil
}

// SetStripeCustomerID records the provider customer reference. Only
// fills an empty value so a racing duplicate does not overwrite the
// first customer created.
func (r *OrganizationRepo) SetStripeCustomerID(ctx context.Context, orgID, customerID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE organizations
		 SET stripe_customer_id = $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND (stripe_customer_id IS NULL OR stripe_customer_id = '')`,
		customerID, orgID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set stripe customer", err)
	}
	return nil
}

// GetBillingInfo returns the Stripe customer ID and billing email for
// an organization. Satisfies external.OrgBillingLookup.
func (r *OrganizationRepo) GetBillingInfo(ctx context.Context, orgID string) (string, string, error) {
	var customerID *string
	var email string
	err := r.db.QueryRow(ctx,
		`SELECT stripe_customer_id, billing_email
		 FROM organizations
		 WHERE id = $1 AND deleted_at IS NULL`,
		orgID,
	).Scan(&customerID, &email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", types.NewAppError(types.ErrCodeNotFoundOrg, "organization not found", err)
		}
		return "", "", types.NewAppError(types.ErrCodeInternalDB, "failed to load billing info", err)
	}
	if customerID == nil {
		return "", email, nil
	}
	return *customerID, email, nil
}

// UpdateStripeCustomerID satisfies external.OrgBillingLookup.
func (r *OrganizationRepo) UpdateStripeCustomerID(ctx context.Context, orgID string, customerID string) error {
	return r.SetStripeCustomerID(ctx, orgID, customerID)
}

// SetAlumniTier updates the organization's informational alumni tier.
func (r *OrganizationRepo) SetAlumniTier(ctx context.Context, orgID string, tier types.AlumniTier) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE organizations
		 SET alumni_tier = $1,
		     updated_at = NOW()
		 WHERE id = $2 AND deleted_at IS NULL`,
		tier, orgID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update alumni tier", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundOrg, "organization not found", nil)
	}
	return nil
}
