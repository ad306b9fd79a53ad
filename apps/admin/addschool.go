package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shuleapp/shule/core"
	"github.com/shuleapp/shule/core/school"
)

// addSchool onboards a tenant on an existing subscription plan.
func (cli *commandLine) addSchool(name, planID, contact string) error {
	ctx := context.Background()
	name = core.CleanString(name)
	contact = core.CleanString(contact, true /* lower */)

	plan, err := cli.schoolRepo.GetPlan(ctx, planID)
	if err != nil {
		return err
	}
	if !plan.IsActive {
		return fmt.Errorf("plan %q is inactive", plan.Name)
	}
	if err := cli.schoolRepo.CheckNameUniqueness(ctx, name, nil); err != nil {
		return err
	}

	now := time.Now().UTC()
	sch := school.School{
		ID:           uuid.New().String(),
		Name:         name,
		PlanID:       plan.ID,
		ContactEmail: contact,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := cli.schoolRepo.CreateSchool(ctx, sch); err != nil {
		return err
	}
	fmt.Printf("school %q created on plan %q (id: %s)\n", sch.Name, plan.Name, sch.ID)
	return nil
}
