package application

import (
	"context"
	"fmt"
	"sort"

	"github.com/stagepass/seat-reservation/internal/config"
	"github.com/stagepass/seat-reservation/internal/domain/seat"
)

// RulesService は業務ルールに基づく座席選択の検証を行う
// 検証は助言的であり、最終的な排他判定は HoldService が持つ
type RulesService struct {
	seatRepo           seat.Repository
	maxPartySize       int
	restrictedSections map[string]struct{}
}

func NewRulesService(seatRepo seat.Repository, cfg *config.RulesConfig) *RulesService {
	restricted := make(map[string]struct{}, len(cfg.RestrictedSections))
	for _, s := range cfg.RestrictedSections {
		restricted[s] = struct{}{}
	}
	return &RulesService{
		seatRepo:           seatRepo,
		maxPartySize:       cfg.MaxPartySize,
		restrictedSections: restricted,
	}
}

// ValidationResult は座席選択の検証結果
type ValidationResult struct {
	Valid        bool       `json:"valid"`
	Reason       string     `json:"reason,omitempty"`
	Warnings     []string   `json:"warnings,omitempty"`
	Alternatives [][]string `json:"alternatives,omitempty"`
}

// ValidateSelection は座席選択をルールに照らして検証する
// 不可の場合は理由と、可能なら同サイズの連続ブロックの代替案を返す
func (s *RulesService) ValidateSelection(ctx context.Context, showID string, seatIDs []string) (*ValidationResult, error) {
	ids := dedupeSorted(seatIDs)
	if len(ids) == 0 {
		return &ValidationResult{Valid: false, Reason: "座席が指定されていません"}, nil
	}
	if s.maxPartySize > 0 && len(ids) > s.maxPartySize {
		return &ValidationResult{
			Valid:  false,
			Reason: fmt.Sprintf("一度に選択できる座席は%d席までです", s.maxPartySize),
		}, nil
	}

	selected, err := s.seatRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("座席取得に失敗: %w", err)
	}
	if len(selected) != len(ids) {
		return &ValidationResult{Valid: false, Reason: "存在しない座席が含まれています"}, nil
	}
	for _, se := range selected {
		if se.ShowID != showID {
			return &ValidationResult{Valid: false, Reason: "指定された公演の座席ではありません"}, nil
		}
		if _, ok := s.restrictedSections[se.SectionID]; ok {
			return &ValidationResult{
				Valid:  false,
				Reason: fmt.Sprintf("セクション%sはオンラインでは予約できません", se.SectionID),
			}, nil
		}
	}

	allSeats, err := s.seatRepo.GetByShowID(ctx, showID)
	if err != nil {
		return nil, fmt.Errorf("座席取得に失敗: %w", err)
	}

	result := &ValidationResult{Valid: true}
	for _, se := range selected {
		if !se.IsAvailable() {
			result.Valid = false
			result.Reason = "選択された座席の一部は既に確保されています"
			result.Alternatives = s.findAlternatives(allSeats, selected, len(ids))
			return result, nil
		}
	}

	result.Warnings = orphanWarnings(allSeats, selected)
	return result, nil
}

// ValidateHold はホールド作成の直前に強制チェックのみを行う
// 人数上限と制限セクションで弾く。座席の存在・空き状況の最終判定は
// ホールドのトランザクションが持つため、ここでは検査しない
func (s *RulesService) ValidateHold(ctx context.Context, showID string, seatIDs []string) (*ValidationResult, error) {
	ids := dedupeSorted(seatIDs)
	if len(ids) == 0 {
		return &ValidationResult{Valid: false, Reason: "座席が指定されていません"}, nil
	}
	if s.maxPartySize > 0 && len(ids) > s.maxPartySize {
		return &ValidationResult{
			Valid:  false,
			Reason: fmt.Sprintf("一度に選択できる座席は%d席までです", s.maxPartySize),
		}, nil
	}
	if len(s.restrictedSections) == 0 {
		return &ValidationResult{Valid: true}, nil
	}

	selected, err := s.seatRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("座席取得に失敗: %w", err)
	}
	for _, se := range selected {
		if _, ok := s.restrictedSections[se.SectionID]; ok {
			return &ValidationResult{
				Valid:  false,
				Reason: fmt.Sprintf("セクション%sはオンラインでは予約できません", se.SectionID),
			}, nil
		}
	}
	return &ValidationResult{Valid: true}, nil
}

// orphanWarnings は選択により孤立する1席の隙間が生じる場合に警告を返す
func orphanWarnings(allSeats, selected []*seat.Seat) []string {
	selectedSet := make(map[string]struct{}, len(selected))
	rows := make(map[string]struct{}, len(selected))
	for _, se := range selected {
		selectedSet[se.ID] = struct{}{}
		rows[rowKey(se)] = struct{}{}
	}

	byRow := make(map[string][]*seat.Seat)
	for _, se := range allSeats {
		key := rowKey(se)
		if _, ok := rows[key]; ok {
			byRow[key] = append(byRow[key], se)
		}
	}

	var warnings []string
	for _, rowSeats := range byRow {
		sort.Slice(rowSeats, func(i, j int) bool {
			return rowSeats[i].Number < rowSeats[j].Number
		})
		for i, se := range rowSeats {
			if !wouldRemainFree(se, selectedSet) {
				continue
			}
			leftBlocked := i == 0 || !wouldRemainFree(rowSeats[i-1], selectedSet) || rowSeats[i-1].Number != se.Number-1
			rightBlocked := i == len(rowSeats)-1 || !wouldRemainFree(rowSeats[i+1], selectedSet) || rowSeats[i+1].Number != se.Number+1
			if leftBlocked && rightBlocked {
				warnings = append(warnings, fmt.Sprintf(
					"セクション%s %s列%d番が孤立席になります", se.SectionID, se.Row, se.Number))
			}
		}
	}
	sort.Strings(warnings)
	return warnings
}

func wouldRemainFree(se *seat.Seat, selected map[string]struct{}) bool {
	if _, ok := selected[se.ID]; ok {
		return false
	}
	return se.IsAvailable()
}

// findAlternatives は選択と同じサイズの空き連続ブロックを探す
// 選択席と同じ列を優先し、最大3件まで返す
func (s *RulesService) findAlternatives(allSeats, selected []*seat.Seat, size int) [][]string {
	preferredRows := make(map[string]struct{}, len(selected))
	for _, se := range selected {
		preferredRows[rowKey(se)] = struct{}{}
	}

	byRow := make(map[string][]*seat.Seat)
	for _, se := range allSeats {
		if !se.IsAvailable() {
			continue
		}
		if _, restricted := s.restrictedSections[se.SectionID]; restricted {
			continue
		}
		byRow[rowKey(se)] = append(byRow[rowKey(se)], se)
	}

	rowKeys := make([]string, 0, len(byRow))
	for key := range byRow {
		rowKeys = append(rowKeys, key)
	}
	sort.Slice(rowKeys, func(i, j int) bool {
		_, pi := preferredRows[rowKeys[i]]
		_, pj := preferredRows[rowKeys[j]]
		if pi != pj {
			return pi
		}
		return rowKeys[i] < rowKeys[j]
	})

	const maxAlternatives = 3
	var alternatives [][]string
	for _, key := range rowKeys {
		rowSeats := byRow[key]
		sort.Slice(rowSeats, func(i, j int) bool {
			return rowSeats[i].Number < rowSeats[j].Number
		})
		for start := 0; start+size <= len(rowSeats); start++ {
			contiguous := true
			for k := 1; k < size; k++ {
				if rowSeats[start+k].Number != rowSeats[start+k-1].Number+1 {
					contiguous = false
					break
				}
			}
			if !contiguous {
				continue
			}
			block := make([]string, size)
			for k := 0; k < size; k++ {
				block[k] = rowSeats[start+k].ID
			}
			alternatives = append(alternatives, block)
			if len(alternatives) >= maxAlternatives {
				return alternatives
			}
			// 同じ列からは1ブロックのみ提案する
			break
		}
	}
	return alternatives
}

func rowKey(se *seat.Seat) string {
	return se.SectionID + "/" + se.Row
}
