// Package interactive provides terminal user interface components
package interactive

import (
	"errors"
	"fmt"

	"github.com/AlecAivazis/survey/v2"
)

// MenuOption represents a menu item with its associated action
type MenuOption struct {
	Name        string
	Description string
	Action      func() error
}

var (
	// ErrExit is returned when the user chooses to exit
	ErrExit = errors.New("exit")
	// ErrInvalidSelection is returned when an invalid menu option is selected
	ErrInvalidSelection = errors.New("invalid selection")
	// ErrNothingSelected is returned when a multi-select ends empty
	ErrNothingSelected = errors.New("nothing selected")
)

const exitChoice = "Exit"

// ShowMainMenu displays the menu and runs the selected option's action.
func ShowMainMenu(options []MenuOption) error {
	return ShowMenu("What would you like to do?", options)
}

// ShowMenu displays a menu with message and runs the selected option's action.
func ShowMenu(message string, options []MenuOption) error {
	choices, optionMap := menuChoices(options)

	var selected string
	prompt := &survey.Select{
		Message: message,
		Options: choices,
	}

	if err := survey.AskOne(prompt, &selected); err != nil {
		return ErrExit
	}

	return dispatch(selected, optionMap)
}

func menuChoices(options []MenuOption) ([]string, map[string]MenuOption) {
	choices := make([]string, 0, len(options)+1)
	optionMap := make(map[string]MenuOption, len(options))

	for _, opt := range options {
		choice := opt.Name
		if opt.Description != "" {
			choice = fmt.Sprintf("%s - %s", opt.Name, opt.Description)
		}

		choices = append(choices, choice)
		optionMap[choice] = opt
	}

	return append(choices, exitChoice), optionMap
}

func dispatch(selected string, optionMap map[string]MenuOption) error {
	if selected == exitChoice {
		return ErrExit
	}

	if option, ok := optionMap[selected]; ok {
		return option.Action()
	}

	return ErrInvalidSelection
}

// SelectFromList asks for one of choices.
func SelectFromList(message string, choices []string) (string, error) {
	var selected string

	prompt := &survey.Select{
		Message: message,
		Options: choices,
	}

	if err := survey.AskOne(prompt, &selected); err != nil {
		return "", err
	}

	return selected, nil
}

// SelectMany asks for any subset of choices, all preselected.
func SelectMany(message string, choices []string) ([]string, error) {
	var selected []string

	prompt := &survey.MultiSelect{
		Message: message,
		Options: choices,
		Default: choices,
	}

	if err := survey.AskOne(prompt, &selected); err != nil {
		return nil, err
	}

	if len(selected) == 0 {
		return nil, ErrNothingSelected
	}

	return selected, nil
}

// PauseForEnter waits for the user to press Enter
func PauseForEnter() {
	fmt.Println("\nPress Enter to continue...")
	_, _ = fmt.Scanln()
}

// Confirm asks for user confirmation
func Confirm(message string) bool {
	confirmed := false
	prompt := &survey.Confirm{
		Message: message,
		Default: false,
	}
	_ = survey.AskOne(prompt, &confirmed)
	return confirmed
}
