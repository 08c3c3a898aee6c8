package orm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// GetImage loads an image with its variant file list and label memberships.
func (db *DB) GetImage(ctx context.Context, hash string) (*Image, error) {
	if hash == "" {
		return nil, &BadInputError{Reason: "image hash must be provided"}
	}

	image, err := gorm.G[Image](
		db.dbGorm,
	).Preload("Variants", nil).Preload("Labels", nil).Where(&Image{
		Hash: hash,
	}).First(ctx)
	if err != nil {
		return nil, wrapErrorWithDetails(
			err,
			"get image by hash",
			fmt.Sprintf("hash=%s", hash),
		)
	}

	return &image, nil
}

// ImageExists reports whether an image row exists for the given hash.
func (db *DB) ImageExists(ctx context.Context, hash string) (bool, error) {
	if hash == "" {
		return false, &BadInputError{Reason: "image hash must be provided"}
	}

	count, err := gorm.G[Image](db.dbGorm).Where(&Image{
		Hash: hash,
	}).Count(ctx, "*")
	if err != nil {
		return false, wrapErrorWithDetails(
			err,
			"check image exists",
			fmt.Sprintf("hash=%s", hash),
		)
	}

	return count > 0, nil
}

// UpsertImage creates or updates the image row for the given hash. On create
// the unlabeled-since timestamp is set when no labels were supplied; on
// update it is cleared once labels are present.
func (db *DB) UpsertImage(
	ctx context.Context,
	image *Image,
	hasLabels bool,
) error {
	if image == nil || image.Hash == "" {
		return &BadInputError{Reason: "image with hash must be provided"}
	}

	detailString := fmt.Sprintf("hash=%s", image.Hash)

	existing, err := gorm.G[Image](db.dbGorm).Where(&Image{
		Hash: image.Hash,
	}).First(ctx)
	if err == nil {
		existing.Alt = image.Alt
		existing.Description = image.Description
		if hasLabels {
			existing.UnlabeledSince = nil
		}

		return wrapErrorWithDetails(
			db.dbGorm.Save(&existing).Error,
			"upsert image - update existing",
			detailString,
		)
	}

	if !isNotFound(err) {
		return wrapErrorWithDetails(err, "upsert image - lookup", detailString)
	}

	if !hasLabels {
		now := time.Now()
		image.UnlabeledSince = &now
	}

	err = gorm.G[Image](db.dbGorm).Create(ctx, image)

	return wrapErrorWithDetails(err, "upsert image - create", detailString)
}

// ReplaceVariants deletes every prior variant row for the hash and inserts a
// fresh row per generated file, inside one transaction.
func (db *DB) ReplaceVariants(
	ctx context.Context,
	hash string,
	variants []ImageVariant,
) error {
	if hash == "" {
		return &BadInputError{Reason: "image hash must be provided"}
	}

	detailString := fmt.Sprintf("hash=%s, variants=%d", hash, len(variants))

	err := db.dbGorm.Transaction(func(tx *gorm.DB) error {
		txDB := db.UseTransaction(tx)

		_, err := gorm.G[ImageVariant](tx).Where(&ImageVariant{
			Hash: hash,
		}).Delete(ctx)
		if err != nil && !isNotFound(err) {
			return wrapErrorWithDetails(
				err,
				"replace variants - delete prior rows",
				detailString,
			)
		}

		for i := range variants {
			variants[i].Hash = hash
			if err := txDB.AddVariant(ctx, &variants[i]); err != nil {
				return err
			}
		}

		return nil
	})

	//nolint:wrapcheck // Error already wrapped
	return err
}

// AddVariant inserts one variant row for an already generated file.
func (db *DB) AddVariant(ctx context.Context, variant *ImageVariant) error {
	if variant == nil || variant.Hash == "" || variant.Src == "" {
		return &BadInputError{Reason: "variant with hash and src must be provided"}
	}

	return wrapErrorWithDetails(
		gorm.G[ImageVariant](db.dbGorm).Create(ctx, variant),
		"add variant",
		fmt.Sprintf("hash=%s, src=%s", variant.Hash, variant.Src),
	)
}

// ReplaceLabels replaces the label rows for the hash with the supplied
// labels, preserving input order as the positional index.
func (db *DB) ReplaceLabels(
	ctx context.Context,
	hash string,
	labels []string,
) error {
	if hash == "" {
		return &BadInputError{Reason: "image hash must be provided"}
	}

	detailString := fmt.Sprintf("hash=%s, labels=%v", hash, labels)

	err := db.dbGorm.Transaction(func(tx *gorm.DB) error {
		_, err := gorm.G[ImageLabel](tx).Where(&ImageLabel{
			Hash: hash,
		}).Delete(ctx)
		if err != nil && !isNotFound(err) {
			return wrapErrorWithDetails(
				err,
				"replace labels - delete prior rows",
				detailString,
			)
		}

		for i, name := range labels {
			label := ImageLabel{Hash: hash, Name: name, Position: i}
			if err := gorm.G[ImageLabel](tx).Create(ctx, &label); err != nil {
				return wrapErrorWithDetails(
					err,
					"replace labels - create row",
					detailString,
				)
			}
		}

		return nil
	})

	//nolint:wrapcheck // Error already wrapped
	return err
}

// EntityRefs returns the ids of domain entities that reference the image.
func (db *DB) EntityRefs(ctx context.Context, hash string) ([]string, error) {
	if hash == "" {
		return nil, &BadInputError{Reason: "image hash must be provided"}
	}

	refs, err := gorm.G[EntityImage](db.dbGorm).Where(&EntityImage{
		Hash: hash,
	}).Find(ctx)
	if err != nil {
		return nil, wrapErrorWithDetails(
			err,
			"get entity refs",
			fmt.Sprintf("hash=%s", hash),
		)
	}

	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.EntityID)
	}

	return ids, nil
}

// AddEntityRef records that a domain entity references the image.
func (db *DB) AddEntityRef(ctx context.Context, entityID, hash string) error {
	if entityID == "" || hash == "" {
		return &BadInputError{Reason: "entity id and image hash must be provided"}
	}

	return wrapErrorWithDetails(
		gorm.G[EntityImage](db.dbGorm).Create(ctx, &EntityImage{
			EntityID: entityID,
			Hash:     hash,
		}),
		"add entity ref",
		fmt.Sprintf("entity=%s, hash=%s", entityID, hash),
	)
}

// DeleteImageMeta removes the image row together with its variant, label and
// entity-association rows in a single transaction.
func (db *DB) DeleteImageMeta(ctx context.Context, hash string) error {
	if hash == "" {
		return &BadInputError{Reason: "image hash must be provided"}
	}

	detailString := fmt.Sprintf("hash=%s", hash)

	err := db.dbGorm.Transaction(func(tx *gorm.DB) error {
		if _, err := gorm.G[ImageLabel](tx).Where(&ImageLabel{Hash: hash}).Delete(ctx); err != nil && !isNotFound(err) {
			return wrapErrorWithDetails(err, "delete image meta - labels", detailString)
		}

		if _, err := gorm.G[ImageVariant](tx).Where(&ImageVariant{Hash: hash}).Delete(ctx); err != nil && !isNotFound(err) {
			return wrapErrorWithDetails(err, "delete image meta - variants", detailString)
		}

		if _, err := gorm.G[EntityImage](tx).Where(&EntityImage{Hash: hash}).Delete(ctx); err != nil && !isNotFound(err) {
			return wrapErrorWithDetails(err, "delete image meta - entity refs", detailString)
		}

		if _, err := gorm.G[Image](tx).Where(&Image{Hash: hash}).Delete(ctx); err != nil && !isNotFound(err) {
			return wrapErrorWithDetails(err, "delete image meta - image row", detailString)
		}

		return nil
	})

	//nolint:wrapcheck // Error already wrapped
	return err
}

// AbandonedImages returns images that have stayed unlabeled since before the
// given cutoff. The retention sweep feeds these into the deletion protocol.
func (db *DB) AbandonedImages(
	ctx context.Context,
	cutoff time.Time,
) ([]Image, error) {
	images, err := gorm.G[Image](db.dbGorm).Where(
		"unlabeled_since IS NOT NULL AND unlabeled_since < ?", cutoff,
	).Find(ctx)
	if err != nil {
		return nil, wrapErrorWithDetails(
			err,
			"get abandoned images",
			fmt.Sprintf("cutoff=%s", cutoff),
		)
	}

	return images, nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}

	var notFound *NotFoundError

	return errors.Is(err, gorm.ErrRecordNotFound) || errors.As(err, &notFound)
}
