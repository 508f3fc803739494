package endpoint

import (
	"fmt"
	"strconv"

	"github.com/carecycle/carecycle-api/model"
	"github.com/carecycle/carecycle-api/util"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type createCareItemRequest struct {
	Name          string `json:"name" example:"Catheter change"`
	Code          string `json:"code" example:"CATH01"`
	ItemType      string `json:"item_type" example:"procedure"`
	IntervalWeeks int    `json:"interval_weeks" example:"4"`
	Description   string `json:"description,omitempty" example:"Replace urinary catheter"`
}

type updateCareItemRequest struct {
	Name          string `json:"name,omitempty"`
	ItemType      string `json:"item_type,omitempty"`
	IntervalWeeks int    `json:"interval_weeks,omitempty"`
	Description   string `json:"description,omitempty"`
	Active        *bool  `json:"active,omitempty"`
}

func validateCareItemFields(name, code, itemType string, intervalWeeks int) error {
	if name == "" || code == "" {
		return fmt.Errorf("name and code are required")
	}
	if !model.ValidItemType(itemType) {
		return fmt.Errorf("item_type must be %q or %q", model.ItemTypeProcedure, model.ItemTypeMedication)
	}
	if intervalWeeks < model.MinIntervalWeeks || intervalWeeks > model.MaxIntervalWeeks {
		return fmt.Errorf("interval_weeks must be between %d and %d", model.MinIntervalWeeks, model.MaxIntervalWeeks)
	}
	return nil
}

func decorateCareItems(items []model.CareItem) []model.ListCareItemResponse {
	out := make([]model.ListCareItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, model.ListCareItemResponse{
			CareItem:      item,
			IntervalLabel: model.DescribeInterval(item.IntervalWeeks),
		})
	}
	return out
}

// ListCareItems godoc
// @Summary      List care items
// @Description  Get care item definitions with optional keyword and type filters
// @Tags         CareItem
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        limit query int false "Limit number of results"
// @Param        offset query int false "Offset for pagination"
// @Param        keyword query string false "Search keyword for item name or code"
// @Param        item_type query string false "Filter by item type: procedure|medication"
// @Param        active query bool false "Filter by active flag"
// @Success      200 {object} util.APIResponse{data=object} "Care items retrieved"
// @Failure      401 {object} util.APIResponse "Unauthorized"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /item [get]
func ListCareItems(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	keyword := c.Query("keyword")
	itemType := c.Query("item_type")

	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	query := db.Model(&model.CareItem{}).Order("care_items.created_at DESC")
	if keyword != "" {
		kw := "%" + keyword + "%"
		query = query.Where("name LIKE ? OR code LIKE ?", kw, kw)
	}
	if itemType != "" {
		query = query.Where("item_type = ?", itemType)
	}
	if activeStr := c.Query("active"); activeStr != "" {
		active, err := strconv.ParseBool(activeStr)
		if err == nil {
			query = query.Where("active = ?", active)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		util.RespondWithError(c, "Failed to count care items", err)
		return
	}

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var items []model.CareItem
	if err := query.Find(&items).Error; err != nil {
		util.RespondWithError(c, "Failed to retrieve care items", err)
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Care items retrieved",
		Data: map[string]interface{}{"total": total, "total_fetched": len(items), "items": decorateCareItems(items)},
	})
}

// CreateCareItem godoc
// @Summary      Create a care item
// @Description  Define a new recurring procedure or medication
// @Tags         CareItem
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        request body createCareItemRequest true "Care item definition"
// @Success      201 {object} util.APIResponse{data=model.CareItem} "Care item created"
// @Failure      400 {object} util.APIResponse "Invalid request"
// @Failure      409 {object} util.APIResponse "Code already registered"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /item [post]
func CreateCareItem(c *gin.Context) {
	req := createCareItemRequest{}
	if !bindJSONOrRespond(c, &req, "Invalid request body") {
		return
	}

	if err := validateCareItemFields(req.Name, req.Code, req.ItemType, req.IntervalWeeks); err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: "Invalid care item definition", Err: err})
		return
	}

	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	item := model.CareItem{
		Name:          util.NormalizeName(req.Name),
		Code:          req.Code,
		ItemType:      req.ItemType,
		IntervalWeeks: req.IntervalWeeks,
		Description:   req.Description,
		Active:        true,
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		var existing model.CareItem
		if err := tx.Where("code = ?", req.Code).First(&existing).Error; err == nil {
			return fmt.Errorf("care item code already exists")
		} else if err != gorm.ErrRecordNotFound {
			return err
		}
		return tx.Create(&item).Error
	})
	if err != nil {
		util.RespondWithError(c, "Failed to create care item", err)
		return
	}

	util.CallSuccessCreated(c, util.APISuccessParams{
		Msg:  "Care item created",
		Data: item,
	})
}

func getCareItemByID(c *gin.Context, db *gorm.DB) (model.CareItem, error) {
	id := c.Param("id")
	if id == "" {
		err := fmt.Errorf("care item ID is required")
		util.CallUserError(c, util.APIErrorParams{Msg: "Missing care item ID", Err: err})
		return model.CareItem{}, err
	}

	var item model.CareItem
	if err := db.First(&item, id).Error; err != nil {
		util.CallErrorNotFound(c, util.APIErrorParams{Msg: "Care item not found", Err: err})
		return model.CareItem{}, err
	}
	return item, nil
}

// GetCareItemInfo godoc
// @Summary      Get care item information
// @Tags         CareItem
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id path string true "Care item ID"
// @Success      200 {object} util.APIResponse{data=model.ListCareItemResponse} "Care item retrieved"
// @Failure      404 {object} util.APIResponse "Care item not found"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /item/{id} [get]
func GetCareItemInfo(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	item, err := getCareItemByID(c, db)
	if err != nil {
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg: "Care item retrieved",
		Data: model.ListCareItemResponse{
			CareItem:      item,
			IntervalLabel: model.DescribeInterval(item.IntervalWeeks),
		},
	})
}

// UpdateCareItem godoc
// @Summary      Update a care item
// @Description  Update a care item definition; interval changes apply to future due dates only
// @Tags         CareItem
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id path string true "Care item ID"
// @Param        request body updateCareItemRequest true "Updated care item fields"
// @Success      200 {object} util.APIResponse{data=model.CareItem} "Care item updated"
// @Failure      400 {object} util.APIResponse "Invalid request"
// @Failure      404 {object} util.APIResponse "Care item not found"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /item/{id} [patch]
func UpdateCareItem(c *gin.Context) {
	req := updateCareItemRequest{}
	if !bindJSONOrRespond(c, &req, "Invalid request body") {
		return
	}

	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	item, err := getCareItemByID(c, db)
	if err != nil {
		return
	}

	if req.Name != "" {
		item.Name = util.NormalizeName(req.Name)
	}
	if req.ItemType != "" {
		if !model.ValidItemType(req.ItemType) {
			util.CallUserError(c, util.APIErrorParams{
				Msg: "Invalid care item type",
				Err: fmt.Errorf("item_type must be %q or %q", model.ItemTypeProcedure, model.ItemTypeMedication),
			})
			return
		}
		item.ItemType = req.ItemType
	}
	if req.IntervalWeeks != 0 {
		if req.IntervalWeeks < model.MinIntervalWeeks || req.IntervalWeeks > model.MaxIntervalWeeks {
			util.CallUserError(c, util.APIErrorParams{
				Msg: "Invalid recurrence interval",
				Err: fmt.Errorf("interval_weeks must be between %d and %d", model.MinIntervalWeeks, model.MaxIntervalWeeks),
			})
			return
		}
		item.IntervalWeeks = req.IntervalWeeks
	}
	if req.Description != "" {
		item.Description = req.Description
	}
	if req.Active != nil {
		item.Active = *req.Active
	}

	if err := db.Save(&item).Error; err != nil {
		util.RespondWithError(c, "Failed to update care item", err)
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Care item updated",
		Data: item,
	})
}

// DeleteCareItem godoc
// @Summary      Delete a care item
// @Description  Soft delete a care item; blocked while active schedules still reference it
// @Tags         CareItem
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id path string true "Care item ID"
// @Success      200 {object} util.APIResponse "Care item deleted"
// @Failure      404 {object} util.APIResponse "Care item not found"
// @Failure      409 {object} util.APIResponse "Care item still scheduled"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /item/{id} [delete]
func DeleteCareItem(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	item, err := getCareItemByID(c, db)
	if err != nil {
		return
	}

	var activeSchedules int64
	if err := db.Model(&model.PatientSchedule{}).
		Where("care_item_id = ? AND active = ?", item.ID, true).
		Count(&activeSchedules).Error; err != nil {
		util.RespondWithError(c, "Failed to check schedules for care item", err)
		return
	}
	if activeSchedules > 0 {
		util.CallConflictError(c, util.APIErrorParams{
			Msg: "Care item is still referenced by active schedules",
			Err: fmt.Errorf("%d active schedules reference this item", activeSchedules),
		})
		return
	}

	if err := db.Delete(&item).Error; err != nil {
		util.RespondWithError(c, "Failed to delete care item", err)
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg: "Care item deleted",
	})
}
